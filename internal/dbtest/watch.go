package dbtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/watchcoin/backend/internal/apperror"
	"github.com/watchcoin/backend/internal/models"
	"github.com/watchcoin/backend/internal/repository"
)

// watchState is shared by the video and assignment stores so candidate
// queries can see assignments the way the SQL join does.
type watchState struct {
	mu          sync.Mutex
	videos      map[uuid.UUID]*models.Video
	assignments map[uuid.UUID]*models.WatchAssignment
	clock       time.Time
}

// VideoStore is an in-memory services.VideoStore.
type VideoStore struct{ s *watchState }

// AssignmentStore is an in-memory services.AssignmentStore.
type AssignmentStore struct{ s *watchState }

// NewWatchStores returns linked video and assignment stores.
func NewWatchStores() (*VideoStore, *AssignmentStore) {
	st := &watchState{
		videos:      make(map[uuid.UUID]*models.Video),
		assignments: make(map[uuid.UUID]*models.WatchAssignment),
		clock:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	return &VideoStore{s: st}, &AssignmentStore{s: st}
}

func (st *watchState) tick() time.Time {
	st.clock = st.clock.Add(time.Second)
	return st.clock
}

// Put stores a copy of v directly, outside any transaction.
func (vs *VideoStore) Put(v models.Video) {
	vs.s.mu.Lock()
	defer vs.s.mu.Unlock()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = vs.s.tick()
	}
	vs.s.videos[v.ID] = &v
}

// Get returns a copy of the stored video.
func (vs *VideoStore) Get(id uuid.UUID) models.Video {
	vs.s.mu.Lock()
	defer vs.s.mu.Unlock()
	return *vs.s.videos[id]
}

func (vs *VideoStore) Create(_ context.Context, tx pgx.Tx, v *models.Video) error {
	vs.s.mu.Lock()
	defer vs.s.mu.Unlock()
	v.CreatedAt = vs.s.tick()
	v.UpdatedAt = v.CreatedAt
	cp := *v
	vs.s.videos[v.ID] = &cp
	OnRollback(tx, func() {
		vs.s.mu.Lock()
		defer vs.s.mu.Unlock()
		delete(vs.s.videos, v.ID)
	})
	return nil
}

func (vs *VideoStore) GetByID(_ context.Context, id uuid.UUID) (*models.Video, error) {
	vs.s.mu.Lock()
	defer vs.s.mu.Unlock()
	v, ok := vs.s.videos[id]
	if !ok {
		return nil, apperror.NotFound("video", id.String())
	}
	cp := *v
	return &cp, nil
}

func (vs *VideoStore) GetForUpdate(ctx context.Context, _ pgx.Tx, id uuid.UUID) (*models.Video, error) {
	return vs.GetByID(ctx, id)
}

func (vs *VideoStore) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]models.Video, error) {
	vs.s.mu.Lock()
	defer vs.s.mu.Unlock()
	var out []models.Video
	for _, v := range vs.s.videos {
		if v.OwnerID == ownerID && v.Status != models.VideoRemoved {
			out = append(out, *v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// update applies fn to the stored video and journals the previous value.
func (vs *VideoStore) update(tx pgx.Tx, id uuid.UUID, fn func(v *models.Video) bool) (*models.Video, bool) {
	vs.s.mu.Lock()
	defer vs.s.mu.Unlock()
	v, ok := vs.s.videos[id]
	if !ok {
		return nil, false
	}
	before := *v
	if !fn(v) {
		return nil, false
	}
	OnRollback(tx, func() {
		vs.s.mu.Lock()
		defer vs.s.mu.Unlock()
		*vs.s.videos[id] = before
	})
	cp := *v
	return &cp, true
}

func (vs *VideoStore) SetStatus(_ context.Context, tx pgx.Tx, id uuid.UUID, status string) error {
	if _, ok := vs.update(tx, id, func(v *models.Video) bool { v.Status = status; return true }); !ok {
		return apperror.NotFound("video", id.String())
	}
	return nil
}

func (vs *VideoStore) Remove(_ context.Context, tx pgx.Tx, id uuid.UUID) error {
	_, ok := vs.update(tx, id, func(v *models.Video) bool {
		if v.Status == models.VideoRemoved {
			return false
		}
		v.Status, v.EscrowRemaining = models.VideoRemoved, 0
		return true
	})
	if !ok {
		return apperror.NotFound("video", id.String())
	}
	return nil
}

func (vs *VideoStore) ClaimSlot(_ context.Context, tx pgx.Tx, id uuid.UUID, reward int64) (*models.Video, error) {
	v, ok := vs.update(tx, id, func(v *models.Video) bool {
		if v.Status != models.VideoActive || v.CompletedWatches >= v.RequestedWatches || v.EscrowRemaining < reward {
			return false
		}
		v.CompletedWatches++
		v.EscrowRemaining -= reward
		if v.CompletedWatches >= v.RequestedWatches {
			v.Status = models.VideoCompleted
		}
		return true
	})
	if !ok {
		return nil, repository.ErrSlotUnavailable
	}
	return v, nil
}

func (vs *VideoStore) Candidates(_ context.Context, userID uuid.UUID, staleBefore time.Time, limit int) ([]models.Video, error) {
	vs.s.mu.Lock()
	defer vs.s.mu.Unlock()
	var out []models.Video
	for _, v := range vs.s.videos {
		if v.Status != models.VideoActive || v.OwnerID == userID || v.CompletedWatches >= v.RequestedWatches {
			continue
		}
		seen, live := false, 0
		for _, a := range vs.s.assignments {
			if a.VideoID != v.ID {
				continue
			}
			if a.UserID == userID {
				seen = true
			}
			if a.Status == models.AssignmentActive && !a.LastHeartbeatAt.Before(staleBefore) {
				live++
			}
		}
		if seen || v.RequestedWatches-v.CompletedWatches <= live {
			continue
		}
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (as *AssignmentStore) withVideo(a *models.WatchAssignment) *models.WatchAssignment {
	cp := *a
	if v, ok := as.s.videos[a.VideoID]; ok {
		cp.YouTubeID, cp.Title = v.YouTubeID, v.Title
	}
	return &cp
}

// Put stores a copy of a directly, outside any transaction.
func (as *AssignmentStore) Put(a models.WatchAssignment) {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()
	as.s.assignments[a.ID] = &a
}

// Count returns how many assignments exist for videoID.
func (as *AssignmentStore) Count(videoID uuid.UUID) int {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()
	n := 0
	for _, a := range as.s.assignments {
		if a.VideoID == videoID {
			n++
		}
	}
	return n
}

func (as *AssignmentStore) Create(_ context.Context, tx pgx.Tx, a *models.WatchAssignment) error {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()
	for _, other := range as.s.assignments {
		if other.UserID == a.UserID && other.Status == models.AssignmentActive {
			return repository.ErrLiveAssignment
		}
		if other.UserID == a.UserID && other.VideoID == a.VideoID {
			return repository.ErrLiveAssignment
		}
	}
	a.CreatedAt = as.s.tick()
	cp := *a
	as.s.assignments[a.ID] = &cp
	OnRollback(tx, func() {
		as.s.mu.Lock()
		defer as.s.mu.Unlock()
		delete(as.s.assignments, a.ID)
	})
	return nil
}

func (as *AssignmentStore) GetByID(_ context.Context, id uuid.UUID) (*models.WatchAssignment, error) {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()
	a, ok := as.s.assignments[id]
	if !ok {
		return nil, apperror.NotFound("assignment", id.String())
	}
	return as.withVideo(a), nil
}

func (as *AssignmentStore) GetLive(_ context.Context, userID uuid.UUID) (*models.WatchAssignment, error) {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()
	for _, a := range as.s.assignments {
		if a.UserID == userID && a.Status == models.AssignmentActive {
			return as.withVideo(a), nil
		}
	}
	return nil, nil
}

func (as *AssignmentStore) CountLive(_ context.Context, _ pgx.Tx, videoID uuid.UUID, staleBefore time.Time) (int, error) {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()
	n := 0
	for _, a := range as.s.assignments {
		if a.VideoID == videoID && a.Status == models.AssignmentActive && !a.LastHeartbeatAt.Before(staleBefore) {
			n++
		}
	}
	return n, nil
}

func (as *AssignmentStore) SaveSession(_ context.Context, a *models.WatchAssignment) error {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()
	cur, ok := as.s.assignments[a.ID]
	if !ok || cur.Status != models.AssignmentActive {
		return apperror.NotFound("assignment", a.ID.String())
	}
	cur.SessionState = a.SessionState
	cur.SessionPlaying = a.SessionPlaying
	cur.SessionHidden = a.SessionHidden
	cur.WatchedMillis = a.WatchedMillis
	cur.LastEventAt = a.LastEventAt
	cur.LastHeartbeatAt = a.LastHeartbeatAt
	return nil
}

func (as *AssignmentStore) Complete(_ context.Context, tx pgx.Tx, id, userID uuid.UUID, at time.Time) (bool, error) {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()
	a, ok := as.s.assignments[id]
	if !ok || a.UserID != userID || a.Status != models.AssignmentActive {
		return false, nil
	}
	before := *a
	a.Status = models.AssignmentCompleted
	a.CompletedAt = &at
	OnRollback(tx, func() {
		as.s.mu.Lock()
		defer as.s.mu.Unlock()
		*as.s.assignments[id] = before
	})
	return true, nil
}

func (as *AssignmentStore) Delete(_ context.Context, id, userID uuid.UUID) (bool, error) {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()
	a, ok := as.s.assignments[id]
	if !ok || a.UserID != userID || a.Status != models.AssignmentActive {
		return false, nil
	}
	delete(as.s.assignments, id)
	return true, nil
}

func (as *AssignmentStore) DeleteStale(_ context.Context, before time.Time) (int64, error) {
	as.s.mu.Lock()
	defer as.s.mu.Unlock()
	var n int64
	for id, a := range as.s.assignments {
		if a.Status == models.AssignmentActive && a.LastHeartbeatAt.Before(before) {
			delete(as.s.assignments, id)
			n++
		}
	}
	return n, nil
}
