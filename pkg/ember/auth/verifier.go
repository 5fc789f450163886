// Package auth implements httpx.Verifier against a sqlpool.Pool: the
// user/password check and registration side effect that /login.html and
// /register.html trigger. All queries are parameterized; the source this
// behavior is modeled on used unescaped string interpolation, which is
// exactly the mistake a parameterized query avoids.
package auth

import (
	"database/sql"
	"time"

	"github.com/yourusername/ember/pkg/ember/sqlpool"
)

// AcquireTimeout bounds how long Verify will wait for a pool slot before
// treating the pool as exhausted and returning false, matching the
// PoolExhausted error kind's "caller observes a null handle" contract.
const AcquireTimeout = 2 * time.Second

// Verifier checks and registers users against a `user` table with
// `username` and `password` columns.
type Verifier struct {
	pool    *sqlpool.Pool
	timeout time.Duration
}

// New returns a Verifier backed by pool, waiting up to AcquireTimeout for a
// pool slot.
func New(pool *sqlpool.Pool) *Verifier {
	return &Verifier{pool: pool, timeout: AcquireTimeout}
}

// NewWithTimeout is New with an explicit pool-acquire timeout, used by
// tests that want to observe PoolExhausted behavior without waiting out
// the production default.
func NewWithTimeout(pool *sqlpool.Pool, timeout time.Duration) *Verifier {
	return &Verifier{pool: pool, timeout: timeout}
}

// Verify implements httpx.Verifier. Empty name or pwd is rejected before
// ever touching the pool. On login it compares the stored password; on
// registration it checks for a name collision before inserting.
func (v *Verifier) Verify(name, pwd string, isLogin bool) bool {
	if name == "" || pwd == "" {
		return false
	}

	conn, err := v.pool.AcquireTimeout(v.timeout)
	if err != nil {
		return false
	}
	defer conn.Release()

	var storedUser, storedPwd string
	row := conn.DB().QueryRow("SELECT username, password FROM user WHERE username=? LIMIT 1", name)
	err = row.Scan(&storedUser, &storedPwd)

	switch {
	case err == sql.ErrNoRows:
		if isLogin {
			return false
		}
		_, err := conn.DB().Exec("INSERT INTO user (username, password) VALUES (?, ?)", name, pwd)
		return err == nil
	case err != nil:
		return false
	default:
		if isLogin {
			return storedPwd == pwd
		}
		// A row already exists for this username: registration fails.
		return false
	}
}
