// Package gorillastore adapts a sessionstore.Store to the Gorilla
// sessions interface (github.com/gorilla/sessions).
//
// The session cookie holds only the session id, signed and encrypted with
// the securecookie key pairs supplied by the caller; the session data
// itself lives server-side in the session store's backend.
package gorillastore

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"github.com/jjeffery/errors"

	"github.com/tyrchen/connect-dynamodb/sessionstore"
)

var errEmptySessionID = errors.New("empty session id")

type sessionID [16]byte

func newSessionID() (sessionID, error) {
	var sid sessionID
	if _, err := io.ReadFull(rand.Reader, sid[:]); err != nil {
		return sid, err
	}
	return sid, nil
}

func (sid sessionID) String() string {
	return hex.EncodeToString(sid[:])
}

func parseSessionID(str string) (sessionID, error) {
	var sid sessionID
	if str == "" {
		// empty session IDs are expected, so detect and error quickly
		return sid, errEmptySessionID
	}
	n, err := hex.Decode(sid[:], []byte(str))
	if err != nil {
		return sid, err
	}
	if n < len(sid) {
		return sid, fmt.Errorf("sessionID too small len=%d", n)
	}
	return sid, nil
}

// Store implements the sessions.Store interface on top of a
// sessionstore.Store.
type Store struct {
	store   *sessionstore.Store
	options sessions.Options
	codecs  []securecookie.Codec
}

// New creates a store suitable for use with Gorilla sessions. Session
// data is persisted using store, options describe the session cookie, and
// keyPairs are the securecookie hash/encryption key pairs used to protect
// the cookie value.
func New(store *sessionstore.Store, options sessions.Options, keyPairs ...[]byte) *Store {
	return &Store{
		store:   store,
		options: options,
		codecs:  securecookie.CodecsFromPairs(keyPairs...),
	}
}

// Get returns a cached session.
func (ss *Store) Get(r *http.Request, name string) (*sessions.Session, error) {
	return sessions.GetRegistry(r).Get(ss, name)
}

// New creates and returns a new session.
//
// Note that New should never return a nil session, even in the case of
// an error if using the Registry infrastructure to cache the session.
func (ss *Store) New(r *http.Request, name string) (*sessions.Session, error) {
	session := sessions.NewSession(ss, name)
	// make a copy
	options := ss.options
	session.Options = &options
	session.IsNew = true
	c, err := r.Cookie(name)
	if err == http.ErrNoCookie {
		return session, nil
	}
	if err != nil {
		return session, errors.Wrap(err, "cannot obtain cookie")
	}
	var sid sessionID
	if err := securecookie.DecodeMulti(name, c.Value, &sid, ss.codecs...); err != nil {
		return session, errors.Wrap(err, "cannot decode cookie")
	}
	session.ID = sid.String()
	sess, err := ss.store.Get(r.Context(), session.ID)
	if err != nil {
		return session, err
	}
	if sess != nil {
		session.IsNew = false // session data exists, so not new
		for k, v := range sess {
			if k == "cookie" {
				// cookie metadata is rebuilt on save
				continue
			}
			session.Values[k] = v
		}
	}
	return session, nil
}

// Save persists session to the underlying store implementation.
func (ss *Store) Save(r *http.Request, w http.ResponseWriter, session *sessions.Session) error {
	// Marked for deletion.
	if session.Options.MaxAge < 0 {
		http.SetCookie(w, sessions.NewCookie(session.Name(), "", session.Options))
		if session.ID != "" {
			if err := ss.store.Destroy(r.Context(), session.ID); err != nil {
				return err
			}
		}
		return nil
	}

	sid, err := parseSessionID(session.ID)
	if err != nil {
		sid, err = newSessionID()
		if err != nil {
			// this will only happen if the crypto RNG fails
			return errors.Wrap(err, "cannot generate random session id")
		}
		session.ID = sid.String()
	}

	sess := make(sessionstore.Session)
	for k, v := range session.Values {
		if ks, ok := k.(string); ok {
			sess[ks] = v
		}
	}
	if session.Options.MaxAge > 0 {
		// cookie max-age is in seconds, the record max-age in milliseconds
		sess["cookie"] = map[string]interface{}{
			"maxAge": float64(session.Options.MaxAge) * 1000,
		}
	}
	if err := ss.store.Set(r.Context(), session.ID, sess); err != nil {
		return err
	}

	encoded, err := securecookie.EncodeMulti(session.Name(), sid, ss.codecs...)
	if err != nil {
		return err
	}
	http.SetCookie(w, sessions.NewCookie(session.Name(), encoded, session.Options))
	return nil
}
