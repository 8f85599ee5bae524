package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const pgNotifyChannel = "chat_documents"

// PostgresAdapter stores documents in a key/jsonb table and signals
// changes through LISTEN/NOTIFY. The notification payload is
// "origin|key"; the listener drops notifications carrying its own
// origin and re-reads the key for the rest.
type PostgresAdapter struct {
	db       *sqlx.DB
	listener *pq.Listener
	origin   string

	mu       sync.Mutex
	handlers map[string][]func(doc []byte)
	done     chan struct{}
}

// NewPostgresAdapter connects, runs migrations and starts listening.
func NewPostgresAdapter(dsn string) (*PostgresAdapter, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS chat_documents (
        key TEXT PRIMARY KEY,
        doc JSONB NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	listener := pq.NewListener(dsn, 5*time.Second, time.Minute, func(_ pq.ListenerEventType, err error) {
		if err != nil {
			log.Printf("store: postgres listener: %v", err)
		}
	})
	if err := listener.Listen(pgNotifyChannel); err != nil {
		_ = listener.Close()
		_ = db.Close()
		return nil, fmt.Errorf("listen %s: %w", pgNotifyChannel, err)
	}

	a := &PostgresAdapter{
		db:       db,
		listener: listener,
		origin:   uuid.NewString(),
		handlers: make(map[string][]func(doc []byte)),
		done:     make(chan struct{}),
	}
	go a.pump()
	return a, nil
}

func (a *PostgresAdapter) Read(ctx context.Context, key string) ([]byte, error) {
	var doc []byte
	err := a.db.GetContext(ctx, &doc, `SELECT doc FROM chat_documents WHERE key=$1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read document %q: %w", key, err)
	}
	return doc, nil
}

func (a *PostgresAdapter) Write(ctx context.Context, key string, doc []byte) error {
	_, err := a.db.ExecContext(ctx, `INSERT INTO chat_documents (key, doc, updated_at)
        VALUES ($1, $2, NOW())
        ON CONFLICT (key) DO UPDATE SET doc = EXCLUDED.doc, updated_at = NOW()`, key, doc)
	if err != nil {
		return fmt.Errorf("write document %q: %w", key, err)
	}
	_, err = a.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, pgNotifyChannel, a.origin+"|"+key)
	if err != nil {
		return fmt.Errorf("notify change of %q: %w", key, err)
	}
	return nil
}

func (a *PostgresAdapter) Subscribe(key string, handler func(doc []byte)) (func(), error) {
	a.mu.Lock()
	a.handlers[key] = append(a.handlers[key], handler)
	idx := len(a.handlers[key]) - 1
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if hs, ok := a.handlers[key]; ok && idx < len(hs) {
			hs[idx] = func([]byte) {}
		}
	}, nil
}

func (a *PostgresAdapter) pump() {
	for {
		select {
		case <-a.done:
			return
		case n, ok := <-a.listener.Notify:
			if !ok {
				return
			}
			if n == nil { // reconnect marker
				continue
			}
			origin, key, found := strings.Cut(n.Extra, "|")
			if !found || origin == a.origin {
				continue
			}
			a.dispatch(key)
		}
	}
}

func (a *PostgresAdapter) dispatch(key string) {
	a.mu.Lock()
	handlers := make([]func(doc []byte), len(a.handlers[key]))
	copy(handlers, a.handlers[key])
	a.mu.Unlock()
	if len(handlers) == 0 {
		return
	}

	doc, err := a.Read(context.Background(), key)
	if err == ErrNotFound {
		doc = nil
	} else if err != nil {
		log.Printf("store: re-read after change of %q failed: %v", key, err)
		return
	}
	for _, h := range handlers {
		h(doc)
	}
}

func (a *PostgresAdapter) Close() error {
	close(a.done)
	_ = a.listener.Close()
	return a.db.Close()
}
