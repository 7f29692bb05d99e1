package contextkeys

// contextKey is an unexported type to prevent collisions with context keys defined in
// other packages.
type contextKey string

// String makes contextKey satisfy the Stringer interface to assist with debugging.
func (c contextKey) String() string {
	return "firestore-typed context key " + string(c)
}

const (
	// RequestIDKey carries the gateway request id.
	RequestIDKey = contextKey("requestID")
	// UserIDKey carries the subject of a verified bearer token.
	UserIDKey = contextKey("userID")
	// OperationKey names the client operation being performed (get, query, set...).
	OperationKey = contextKey("operation")
	// CollectionKey carries the collection path an operation targets.
	CollectionKey = contextKey("collection")
)
