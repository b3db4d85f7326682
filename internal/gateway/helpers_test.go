package gateway

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/matheus3301/convsync/internal/bus"
	v1 "github.com/matheus3301/convsync/internal/contract/v1"
	"github.com/matheus3301/convsync/internal/provider"
	"github.com/matheus3301/convsync/internal/registry"
	"github.com/matheus3301/convsync/internal/store"
)

type testGateway struct {
	srv  *httptest.Server
	db   *store.DB
	bus  *bus.Bus
	rec  *Recorder
	prov *provider.Loopback
	ws   *WSGateway
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "messages.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	b := bus.New()
	rec := NewRecorder(db, b, nil)
	reg := registry.New(NewActiveLister(db, 0), nil)
	prov := provider.NewLoopback(b, 0, nil)
	if err := prov.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(prov.Stop)

	ws := NewWSGateway(db, rec, reg, b, NewHub(nil), WSOptions{MaxMessageChars: 50}, nil)
	ws.Start(context.Background())
	t.Cleanup(ws.Stop)

	api := NewAPI(db, rec, reg, prov, APIOptions{ProviderTimeout: 2 * time.Second, MaxMessageChars: 50}, nil)
	srv := httptest.NewServer(NewRouter(api, ws, RouterOptions{}, nil))
	t.Cleanup(srv.Close)

	return &testGateway{srv: srv, db: db, bus: b, rec: rec, prov: prov, ws: ws}
}

func (g *testGateway) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	u := "ws" + strings.TrimPrefix(g.srv.URL, "http") + "/ws/chat?" + query
	conn, _, err := websocket.Dial(ctx, u, &websocket.DialOptions{Subprotocols: []string{v1.Subprotocol}})
	if err != nil {
		t.Fatalf("dial %s: %v", query, err)
	}
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

// connect dials and consumes the welcome, returning the session id.
func (g *testGateway) connect(t *testing.T, query string) (*websocket.Conn, string) {
	t.Helper()
	conn := g.dial(t, query)
	env := readEnv(t, conn)
	if env.Type != v1.TypeWelcome {
		t.Fatalf("first frame = %s, want welcome", env.Type)
	}
	var w v1.WelcomePayload
	if err := env.Decode(&w); err != nil {
		t.Fatal(err)
	}
	return conn, w.ConversationID
}

func readEnv(t *testing.T, conn *websocket.Conn) v1.Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var env v1.Envelope
	if err := wsjson.Read(ctx, conn, &env); err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	return env
}

// readType reads until an envelope of typ arrives.
func readType(t *testing.T, conn *websocket.Conn, typ string) v1.Envelope {
	t.Helper()
	for range 10 {
		if env := readEnv(t, conn); env.Type == typ {
			return env
		}
	}
	t.Fatalf("no %s envelope within 10 frames", typ)
	return v1.Envelope{}
}

func writeEnv(t *testing.T, conn *websocket.Conn, typ string, payload any) v1.Envelope {
	t.Helper()
	env, err := v1.NewEnvelope(typ, payload)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, conn, env); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
	return env
}

func decode[T any](t *testing.T, env v1.Envelope) T {
	t.Helper()
	var p T
	if err := env.Decode(&p); err != nil {
		t.Fatal(err)
	}
	return p
}
