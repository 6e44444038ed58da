package dummydb

import (
	"sync"

	"github.com/darasahq/darasa/core/invite"
	"github.com/darasahq/darasa/core/license"
	"github.com/darasahq/darasa/core/organization"
	"github.com/darasahq/darasa/core/user"
)

type (
	// DB is an in-memory stand-in for the real database, used in tests and
	// local development. A single lock covers all tables so that the seat
	// accounting invariants hold across them, like the real transactions do.
	DB struct {
		sync.RWMutex
		users         map[string]*user.User
		subscriptions map[string]*organization.Subscription
		pools         map[string]*license.Pool
		assignments   map[string]*license.Assignment
		invitations   map[string]*invite.Invitation
	}
)

func Open() (*DB, error) {
	db := &DB{
		users:         make(map[string]*user.User),
		subscriptions: make(map[string]*organization.Subscription),
		pools:         make(map[string]*license.Pool),
		assignments:   make(map[string]*license.Assignment),
		invitations:   make(map[string]*invite.Invitation),
	}
	return db, nil
}
