package model

import "reflect"

// UpdateKind names the field-level mutation an UpdateValue requests.
type UpdateKind string

const (
	KindRemove      UpdateKind = "remove"
	KindIncrement   UpdateKind = "increment"
	KindArrayUnion  UpdateKind = "arrayUnion"
	KindArrayRemove UpdateKind = "arrayRemove"
	KindServerDate  UpdateKind = "serverDate"
)

// UpdateValue is a sentinel telling the database to mutate a field instead of storing a
// literal. It only ever flows towards the database.
type UpdateValue struct {
	Kind   UpdateKind
	Number any
	Values []any
}

// Number is the set of operands Increment accepts.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 |
		~float32 | ~float64
}

// Remove deletes the field.
func Remove() UpdateValue {
	return UpdateValue{Kind: KindRemove}
}

// Increment adds n to the field, treating a missing field as zero.
func Increment[N Number](n N) UpdateValue {
	v := reflect.ValueOf(n)
	switch {
	case v.CanFloat():
		return UpdateValue{Kind: KindIncrement, Number: v.Float()}
	case v.CanInt():
		return UpdateValue{Kind: KindIncrement, Number: v.Int()}
	default:
		return UpdateValue{Kind: KindIncrement, Number: int64(v.Uint())}
	}
}

// ArrayUnion appends the values that are not already present.
func ArrayUnion(values ...any) UpdateValue {
	return UpdateValue{Kind: KindArrayUnion, Values: values}
}

// ArrayRemove removes every occurrence of the values.
func ArrayRemove(values ...any) UpdateValue {
	return UpdateValue{Kind: KindArrayRemove, Values: values}
}

// ServerDate stores the commit time of the write.
func ServerDate() UpdateValue {
	return UpdateValue{Kind: KindServerDate}
}
