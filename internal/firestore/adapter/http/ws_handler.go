package http

import (
	"context"
	"strings"
	"time"

	"firestore-typed/internal/firestore/domain/model"
	"firestore-typed/internal/firestore/usecase"
	"firestore-typed/internal/shared/errors"
	fspath "firestore-typed/internal/shared/firestore"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const writeTimeout = 10 * time.Second

// outgoing is one frame for the socket. The socket closes after a final frame.
type outgoing struct {
	body  fiber.Map
	final bool
}

type changeJSON struct {
	Type     model.ChangeType `json:"type"`
	OldIndex int              `json:"oldIndex"`
	NewIndex int              `json:"newIndex"`
	Doc      documentJSON     `json:"doc"`
}

func snapshotFrame(docs []model.Doc[Document], info model.SnapshotInfo[Document]) outgoing {
	changes := info.Changes()
	rendered := make([]changeJSON, len(changes))
	for i, ch := range changes {
		rendered[i] = changeJSON{Type: ch.Type, OldIndex: ch.OldIndex, NewIndex: ch.NewIndex, Doc: renderDoc(ch.Doc)}
	}
	return outgoing{body: fiber.Map{
		"type":    "snapshot",
		"docs":    renderDocs(docs),
		"size":    info.Size,
		"empty":   info.Empty,
		"changes": rendered,
	}}
}

func documentFrame(path string, doc *model.Doc[Document]) outgoing {
	body := fiber.Map{"type": "document", "path": path, "exists": doc != nil, "doc": nil}
	if doc != nil {
		body["doc"] = renderDoc(*doc)
	}
	return outgoing{body: body}
}

func errorFrame(err error) outgoing {
	return outgoing{body: fiber.Map{"type": "error", "message": err.Error()}, final: true}
}

func (g *Gateway) listenHandler() fiber.Handler {
	return websocket.New(g.handleListen)
}

// handleListen streams a document (even path) or a whole collection (odd path) until
// the client disconnects or the listener fails.
func (g *Gateway) handleListen(conn *websocket.Conn) {
	path := strings.Trim(conn.Query("path"), "/")
	subscriberID := uuid.NewString()
	log := g.log.WithFields(map[string]interface{}{"subscriberID": subscriberID, "path": path})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	send := make(chan outgoing, g.cfg.ClientSendChannelBuffer)
	push := func(frame outgoing) {
		select {
		case send <- frame:
		case <-ctx.Done():
		}
	}
	onError := func(err error) { push(errorFrame(err)) }

	var stop usecase.Unsubscribe
	switch {
	case fspath.IsDocumentPath(path):
		ref, err := documentRef(path)
		if err != nil {
			g.writeFinal(conn, err)
			return
		}
		stop = usecase.OnGet(ctx, g.client, ref, func(doc *model.Doc[Document]) {
			push(documentFrame(path, doc))
		}, onError)
	case path != "":
		collection, err := collectionOf(path)
		if err != nil {
			g.writeFinal(conn, err)
			return
		}
		stop = usecase.OnAll(ctx, g.client, collection, func(docs []model.Doc[Document], info model.SnapshotInfo[Document]) {
			push(snapshotFrame(docs, info))
		}, onError)
	default:
		g.writeFinal(conn, errors.NewValidationError("the path query parameter is required"))
		return
	}
	defer stop()
	log.Info("Listener connected")

	// Reading is only used to notice the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn("WebSocket read failed", zap.Error(err))
				}
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info("Listener disconnected")
			return
		case frame := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(frame.body); err != nil {
				log.Warn("WebSocket write failed", zap.Error(err))
				return
			}
			if frame.final {
				log.Info("Listener closed after error")
				return
			}
		}
	}
}

func (g *Gateway) writeFinal(conn *websocket.Conn, err error) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if werr := conn.WriteJSON(errorFrame(err).body); werr != nil {
		g.log.Warn("WebSocket write failed", zap.Error(werr))
	}
}
