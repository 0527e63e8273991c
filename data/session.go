package data

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"
)

// SessionInfo describes one recording session. Timestamps are epoch
// milliseconds.
type SessionInfo struct {
	ID    string
	Start int64
	Dump  int64
}

// NewSessionInfo creates session info; id must not be empty.
func NewSessionInfo(id string, start, dump int64) (SessionInfo, error) {
	if id == "" {
		return SessionInfo{}, errors.New("data: session id must not be empty")
	}
	return SessionInfo{ID: id, Start: start, Dump: dump}, nil
}

// Compare orders sessions by dump time.
func (s SessionInfo) Compare(o SessionInfo) int {
	return cmp.Compare(s.Dump, o.Dump)
}

func (s SessionInfo) String() string {
	return fmt.Sprintf("SessionInfo[%s]", s.ID)
}

// StartTime returns Start as a time.
func (s SessionInfo) StartTime() time.Time {
	return time.UnixMilli(s.Start)
}

// DumpTime returns Dump as a time.
func (s SessionInfo) DumpTime() time.Time {
	return time.UnixMilli(s.Dump)
}

// SessionInfoVisitor receives session infos.
type SessionInfoVisitor interface {
	VisitSessionInfo(info SessionInfo) error
}

// SessionInfoStore collects session infos.
type SessionInfoStore struct {
	infos []SessionInfo
}

// NewSessionInfoStore creates an empty store.
func NewSessionInfoStore() *SessionInfoStore {
	return &SessionInfoStore{}
}

// IsEmpty reports whether no session was added.
func (s *SessionInfoStore) IsEmpty() bool {
	return len(s.infos) == 0
}

// Infos returns a copy of the sessions ordered by dump time.
func (s *SessionInfoStore) Infos() []SessionInfo {
	out := slices.Clone(s.infos)
	slices.SortStableFunc(out, SessionInfo.Compare)
	return out
}

// Merged returns one session named id spanning the earliest start and the
// latest dump. With no sessions both timestamps are 0.
func (s *SessionInfoStore) Merged(id string) SessionInfo {
	if len(s.infos) == 0 {
		return SessionInfo{ID: id}
	}
	start, dump := int64(math.MaxInt64), int64(math.MinInt64)
	for _, i := range s.infos {
		start = min(start, i.Start)
		dump = max(dump, i.Dump)
	}
	return SessionInfo{ID: id, Start: start, Dump: dump}
}

// Accept passes the sessions to v in dump order.
func (s *SessionInfoStore) Accept(v SessionInfoVisitor) error {
	for _, i := range s.Infos() {
		if err := v.VisitSessionInfo(i); err != nil {
			return err
		}
	}
	return nil
}

// VisitSessionInfo implements SessionInfoVisitor.
func (s *SessionInfoStore) VisitSessionInfo(info SessionInfo) error {
	s.infos = append(s.infos, info)
	return nil
}
