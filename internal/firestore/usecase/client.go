package usecase

import (
	"context"
	"fmt"

	"firestore-typed/internal/firestore/config"
	"firestore-typed/internal/firestore/domain/model"
	"firestore-typed/internal/firestore/domain/repository"
	"firestore-typed/internal/firestore/domain/service"
	"firestore-typed/internal/shared/errors"
	"firestore-typed/internal/shared/logger"
)

// Validated is implemented by models that carry a schema. Whole document writes of such
// models are checked before they reach the driver.
type Validated interface {
	Schema() *service.Schema
}

// Client binds a driver to the marshaller its codec needs. All typed operations in this
// package take a Client.
type Client struct {
	driver     repository.Driver
	marshaller *service.Marshaller
	logger     logger.Logger
}

// NewClient creates a client on driver. cfg may be nil, otherwise its feature flag must be on.
func NewClient(cfg *config.FirestoreConfig, driver repository.Driver, log logger.Logger) (*Client, error) {
	if cfg != nil && !cfg.Enabled {
		return nil, errors.NewFeatureDisabledError("firestore")
	}
	if driver == nil {
		return nil, errors.NewValidationError("a driver is required").WithKind(errors.ErrUnknownDriver)
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Client{
		driver:     driver,
		marshaller: service.NewMarshaller(driver.Codec()),
		logger:     log.WithComponent("firestore_client"),
	}, nil
}

// Driver returns the backend the client talks to.
func (c *Client) Driver() repository.Driver {
	return c.driver
}

// Marshaller returns the converter bound to the driver codec.
func (c *Client) Marshaller() *service.Marshaller {
	return c.marshaller
}

// Close closes the driver.
func (c *Client) Close() error {
	c.logger.Info("Closing client", "driver", c.driver.Name())
	return c.driver.Close()
}

// encode validates data against its schema, if any, and converts it to wire format.
// Remove() is only accepted when merge is set.
func (c *Client) encode(path string, data any, merge bool) (map[string]any, error) {
	unwrap := c.marshaller.UnwrapReplacement
	if merge {
		unwrap = c.marshaller.UnwrapDocument
	}
	wire, err := unwrap(data)
	if err != nil {
		return nil, err
	}
	if schema := schemaOf(data); schema != nil {
		if err := schema.Validate(path, c.marshaller.WrapDocument(wire)); err != nil {
			return nil, err
		}
	}
	return wire, nil
}

func schemaOf(data any) *service.Schema {
	if v, ok := data.(Validated); ok {
		return v.Schema()
	}
	return nil
}

// fieldUpdates converts field-path updates to wire format.
func (c *Client) fieldUpdates(fields []model.Field) ([]repository.FieldUpdate, error) {
	if len(fields) == 0 {
		return nil, errors.NewValidationError("update requires at least one field")
	}
	out := make([]repository.FieldUpdate, 0, len(fields))
	for _, f := range fields {
		if err := f.Path.Validate(); err != nil {
			return nil, errors.NewValidationError(err.Error()).WithCause(err)
		}
		if f.Path.IsDocID() {
			return nil, errors.NewValidationError(model.ErrDocIDInUpdatePath.Error()).WithCause(model.ErrDocIDInUpdatePath)
		}
		value, err := c.marshaller.Unwrap(f.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, repository.FieldUpdate{Path: f.Path, Value: value})
	}
	return out, nil
}

// dataUpdates treats every key of data as a dotted field path. Nested maps replace the
// field as a whole.
func (c *Client) dataUpdates(data model.Data) ([]repository.FieldUpdate, error) {
	fields := make([]model.Field, 0, len(data))
	for key, value := range data {
		fields = append(fields, model.Field{Path: model.ParseFieldPath(key), Value: value})
	}
	return c.fieldUpdates(fields)
}

func toDoc[T any](c *Client, ref model.Ref[T], snap *repository.Snapshot) (model.Doc[T], error) {
	data, err := service.Decode[T](c.marshaller, snap.Data)
	if err != nil {
		return model.Doc[T]{}, errors.NewInternalError(fmt.Sprintf("failed to decode %s", snap.Path)).WithCause(err)
	}
	return model.NewDoc(ref, data, metaOf(snap)), nil
}

func metaOf(snap *repository.Snapshot) model.DocMeta {
	return model.DocMeta{
		FromCache:        snap.FromCache,
		HasPendingWrites: snap.HasPendingWrites,
		CreateTime:       snap.CreateTime,
		UpdateTime:       snap.UpdateTime,
		ReadTime:         snap.ReadTime,
	}
}

func (c *Client) wrapErr(ctx context.Context, err error, op, path string) error {
	if err == nil {
		return nil
	}
	c.logger.WithContext(ctx).Error("Operation failed", "op", op, "path", path, "error", err)
	return errors.WrapError(err, fmt.Sprintf("failed to %s %s", op, path))
}
