package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
)

// ManagerSuite exercises session lifecycle behavior above the store.
type ManagerSuite struct {
	suite.Suite
	manager *Manager
	ctx     context.Context
}

func (s *ManagerSuite) SetupTest() {
	s.manager = NewManager(NewMemoryStore())
	s.ctx = context.Background()
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

// TestCreateAssignsUniqueIDs verifies each session gets its own opaque id.
func (s *ManagerSuite) TestCreateAssignsUniqueIDs() {
	a, err := s.manager.Create(s.ctx, "First", "", "")
	s.Require().NoError(err)
	b, err := s.manager.Create(s.ctx, "Second", "", "")
	s.Require().NoError(err)

	s.NotEmpty(a.ID)
	s.NotEqual(a.ID, b.ID)
	s.Equal("First", a.Title)
	s.NotEmpty(a.CreatedAt)
	s.NotZero(a.CreatedAtEpoch)
}

// TestCreateDefaultTitle verifies an empty title is replaced.
func (s *ManagerSuite) TestCreateDefaultTitle() {
	sess, err := s.manager.Create(s.ctx, "", "", "")
	s.Require().NoError(err)
	s.Equal("New Session", sess.Title)
}

// TestDeleteUnknownIsSuccess verifies delete of an unknown id does not
// error so client cleanup can retry.
func (s *ManagerSuite) TestDeleteUnknownIsSuccess() {
	s.NoError(s.manager.Delete(s.ctx, "never-existed"))

	sess, err := s.manager.Create(s.ctx, "t", "", "")
	s.Require().NoError(err)
	s.NoError(s.manager.Delete(s.ctx, sess.ID))
	s.NoError(s.manager.Delete(s.ctx, sess.ID))
}

// TestDeletedSessionStaysGone verifies nothing resurrects a deleted id.
func (s *ManagerSuite) TestDeletedSessionStaysGone() {
	sess, err := s.manager.Create(s.ctx, "t", "", "")
	s.Require().NoError(err)
	s.Require().NoError(s.manager.Delete(s.ctx, sess.ID))

	_, err = s.manager.Get(s.ctx, sess.ID)
	s.ErrorIs(err, ErrNotFound)
	_, err = s.manager.History(s.ctx, sess.ID)
	s.ErrorIs(err, ErrNotFound)
}

// TestNextTurnIDFallback verifies allocation degrades to 1 instead of
// failing the turn.
func (s *ManagerSuite) TestNextTurnIDFallback() {
	s.Equal(int64(1), s.manager.NextTurnID(s.ctx, "unknown-session"))

	broken := NewManager(brokenStore{})
	s.Equal(int64(1), broken.NextTurnID(s.ctx, "whatever"))
}
