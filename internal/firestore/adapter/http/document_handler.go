package http

import (
	"firestore-typed/internal/firestore/domain/model"
	"firestore-typed/internal/firestore/usecase"
	"firestore-typed/internal/shared/errors"
	fspath "firestore-typed/internal/shared/firestore"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func documentRef(path string) (model.Ref[Document], error) {
	if !fspath.IsDocumentPath(path) {
		return model.Ref[Document]{}, errors.NewInvalidPathError(path, "expected a document path with an even number of segments")
	}
	return model.PathToRef[Document](path)
}

func collectionOf(path string) (model.Collection[Document], error) {
	collection := model.NewCollection[Document](path)
	if err := collection.Validate(); err != nil {
		return model.Collection[Document]{}, err
	}
	return collection, nil
}

// GetDocuments returns one document for a document path and every document for a
// collection path.
func (g *Gateway) GetDocuments(c *fiber.Ctx) error {
	path := documentsPath(c)
	if fspath.IsDocumentPath(path) {
		ref, err := documentRef(path)
		if err != nil {
			return g.fail(c, err)
		}
		doc, err := usecase.Get(requestContext(c, "get", path), g.client, ref)
		if err != nil {
			return g.fail(c, err)
		}
		if doc == nil {
			return g.fail(c, errors.NewNotFoundError("document "+path))
		}
		return c.JSON(renderDoc(*doc))
	}

	collection, err := collectionOf(path)
	if err != nil {
		return g.fail(c, err)
	}
	docs, err := usecase.All(requestContext(c, "all", path), g.client, collection)
	if err != nil {
		return g.fail(c, err)
	}
	return c.JSON(fiber.Map{"documents": renderDocs(docs), "size": len(docs)})
}

// SetDocument overwrites the document with the request body.
func (g *Gateway) SetDocument(c *fiber.Ctx) error {
	path := documentsPath(c)
	ref, err := documentRef(path)
	if err != nil {
		return g.fail(c, err)
	}
	data, err := decodeDocument(c.Body())
	if err != nil {
		return g.fail(c, err)
	}
	if err := usecase.Set(requestContext(c, "set", path), g.client, ref, data); err != nil {
		return g.fail(c, err)
	}
	return c.JSON(fiber.Map{"id": ref.ID, "path": ref.Path()})
}

// PatchDocument merges the body into the document. With merge=false the keys are
// dotted field paths of an update that requires the document to exist.
func (g *Gateway) PatchDocument(c *fiber.Ctx) error {
	path := documentsPath(c)
	ref, err := documentRef(path)
	if err != nil {
		return g.fail(c, err)
	}
	data, err := decodeDocument(c.Body())
	if err != nil {
		return g.fail(c, err)
	}

	if c.Query("merge") == "false" {
		err = usecase.UpdateData(requestContext(c, "update", path), g.client, ref, model.Data(data))
	} else {
		err = usecase.UpsetData(requestContext(c, "upset", path), g.client, ref, model.Data(data))
	}
	if err != nil {
		return g.fail(c, err)
	}
	return c.JSON(fiber.Map{"id": ref.ID, "path": ref.Path()})
}

func (g *Gateway) DeleteDocument(c *fiber.Ctx) error {
	path := documentsPath(c)
	ref, err := documentRef(path)
	if err != nil {
		return g.fail(c, err)
	}
	if err := usecase.Remove(requestContext(c, "remove", path), g.client, ref); err != nil {
		return g.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// AddDocument stores the body under a generated id in the collection.
func (g *Gateway) AddDocument(c *fiber.Ctx) error {
	path := documentsPath(c)
	collection, err := collectionOf(path)
	if err != nil {
		return g.fail(c, err)
	}
	data, err := decodeDocument(c.Body())
	if err != nil {
		return g.fail(c, err)
	}
	ref, err := usecase.Add(requestContext(c, "add", path), g.client, collection, data)
	if err != nil {
		return g.fail(c, err)
	}
	g.log.Debug("Document added", zap.String("path", ref.Path()))
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": ref.ID, "path": ref.Path()})
}
