// Package repotest provides in-memory repositories for handler and service tests.
package repotest

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/cppla/voicebloom/models"
	"github.com/cppla/voicebloom/repository"
)

// Profiles is an in-memory repository.ProfileRepository.
type Profiles struct {
	mu   sync.Mutex
	rows map[string]models.Profile
	Err  error
}

func NewProfiles(seed ...models.Profile) *Profiles {
	p := &Profiles{rows: make(map[string]models.Profile)}
	for _, row := range seed {
		p.rows[row.ID] = row
	}
	return p
}

func (p *Profiles) Create(_ context.Context, row *models.Profile) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	if _, ok := p.rows[row.ID]; ok {
		return repository.ErrConflict
	}
	if row.Email != "" {
		for _, existing := range p.rows {
			if existing.Email == row.Email {
				return repository.ErrConflict
			}
		}
	}
	p.rows[row.ID] = *row
	return nil
}

func (p *Profiles) GetByID(_ context.Context, id string) (*models.Profile, error) {
	return p.find(func(row models.Profile) bool { return row.ID == id })
}

func (p *Profiles) GetByEmail(_ context.Context, email string) (*models.Profile, error) {
	return p.find(func(row models.Profile) bool { return email != "" && row.Email == email })
}

func (p *Profiles) GetByProvider(_ context.Context, provider, providerID string) (*models.Profile, error) {
	return p.find(func(row models.Profile) bool { return row.Provider == provider && row.ProviderID == providerID })
}

func (p *Profiles) find(match func(models.Profile) bool) (*models.Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	for _, row := range p.rows {
		if match(row) {
			out := row
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (p *Profiles) UpdateUsername(_ context.Context, id, username string) error {
	return p.update(id, func(row *models.Profile) { row.Username = username })
}

func (p *Profiles) UpdateLocation(_ context.Context, id, location string) error {
	return p.update(id, func(row *models.Profile) { row.Location = location })
}

func (p *Profiles) UpdateEmail(_ context.Context, id, email string) error {
	p.mu.Lock()
	for otherID, row := range p.rows {
		if otherID != id && row.Email == email {
			p.mu.Unlock()
			return repository.ErrConflict
		}
	}
	p.mu.Unlock()
	return p.update(id, func(row *models.Profile) { row.Email = email })
}

func (p *Profiles) UpdatePassword(_ context.Context, id, hash string) error {
	return p.update(id, func(row *models.Profile) { row.PasswordHash = hash })
}

func (p *Profiles) update(id string, fn func(*models.Profile)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	row, ok := p.rows[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(&row)
	p.rows[id] = row
	return nil
}

// Recordings is an in-memory repository.RecordingRepository. Shared listings
// resolve authors and feedback through the attached Profiles and Feedbacks.
type Recordings struct {
	mu        sync.Mutex
	rows      map[string]models.Recording
	Profiles  *Profiles
	Feedbacks *Feedbacks
	Err       error
}

func NewRecordings(seed ...models.Recording) *Recordings {
	r := &Recordings{rows: make(map[string]models.Recording)}
	for _, row := range seed {
		r.rows[row.ID] = row
	}
	return r
}

func (r *Recordings) Create(_ context.Context, row *models.Recording) error {
	if _, err := models.ParseVisibility(string(row.Visibility)); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if _, ok := r.rows[row.ID]; ok {
		return repository.ErrConflict
	}
	r.rows[row.ID] = *row
	return nil
}

func (r *Recordings) Get(_ context.Context, id string) (*models.Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	row, ok := r.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &row, nil
}

func (r *Recordings) ListByOwner(_ context.Context, userID string, visibility *models.Visibility) ([]models.Recording, error) {
	return r.list(func(row models.Recording) bool {
		return row.UserID == userID && (visibility == nil || row.Visibility == *visibility)
	}, true, 0)
}

func (r *Recordings) ListShared(ctx context.Context, limit int) ([]models.Recording, error) {
	out, err := r.list(func(row models.Recording) bool { return row.Visibility.Shared() }, true, limit)
	if err != nil {
		return nil, err
	}
	for i := range out {
		if r.Profiles != nil {
			if author, err := r.Profiles.GetByID(ctx, out[i].UserID); err == nil {
				out[i].Author = author
			}
		}
		if r.Feedbacks != nil {
			out[i].Feedbacks, _ = r.Feedbacks.ListByRecording(ctx, out[i].ID)
		}
	}
	return out, nil
}

func (r *Recordings) list(match func(models.Recording) bool, newestFirst bool, limit int) ([]models.Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	var out []models.Recording
	for _, row := range r.rows {
		if match(row) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Recordings) Update(_ context.Context, userID, id string, patch models.RecordingPatch) (*models.Recording, error) {
	if patch.Metrics != nil {
		if err := patch.Metrics.Validate(); err != nil {
			return nil, err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	row, ok := r.rows[id]
	if !ok || row.UserID != userID {
		return nil, repository.ErrNotFound
	}
	patch.Apply(&row)
	r.rows[id] = row
	return &row, nil
}

func (r *Recordings) Delete(ctx context.Context, userID, id string) (*models.Recording, error) {
	r.mu.Lock()
	if r.Err != nil {
		r.mu.Unlock()
		return nil, r.Err
	}
	row, ok := r.rows[id]
	if !ok || row.UserID != userID {
		r.mu.Unlock()
		return nil, repository.ErrNotFound
	}
	delete(r.rows, id)
	r.mu.Unlock()
	if r.Feedbacks != nil {
		r.Feedbacks.deleteByRecording(id)
	}
	return &row, nil
}

func (r *Recordings) UpdateAudioPath(_ context.Context, oldPath, newPath string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return 0, r.Err
	}
	var n int64
	for id, row := range r.rows {
		if row.AudioURL == oldPath {
			row.AudioURL = newPath
			r.rows[id] = row
			n++
		}
	}
	return n, nil
}

func (r *Recordings) ListByAudioSuffix(_ context.Context, suffix string, limit int) ([]models.Recording, error) {
	return r.list(func(row models.Recording) bool { return strings.HasSuffix(row.AudioURL, suffix) }, false, limit)
}

// Feedbacks is an in-memory repository.FeedbackRepository.
type Feedbacks struct {
	mu   sync.Mutex
	rows []models.Feedback
	Err  error
}

func NewFeedbacks(seed ...models.Feedback) *Feedbacks {
	return &Feedbacks{rows: append([]models.Feedback(nil), seed...)}
}

func (f *Feedbacks) Create(_ context.Context, row *models.Feedback) error {
	ct, err := models.ParseCommentType(string(row.CommentType))
	if err != nil {
		return err
	}
	row.CommentType = ct
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.rows = append(f.rows, *row)
	return nil
}

func (f *Feedbacks) ListByRecording(_ context.Context, recordingID string) ([]models.Feedback, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	var out []models.Feedback
	for _, row := range f.rows {
		if row.RecordingID == recordingID {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *Feedbacks) Delete(_ context.Context, userID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	for i, row := range f.rows {
		if row.ID == id && row.UserID != nil && *row.UserID == userID {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *Feedbacks) deleteByRecording(recordingID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.rows[:0]
	for _, row := range f.rows {
		if row.RecordingID != recordingID {
			kept = append(kept, row)
		}
	}
	f.rows = kept
}

var (
	_ repository.ProfileRepository   = (*Profiles)(nil)
	_ repository.RecordingRepository = (*Recordings)(nil)
	_ repository.FeedbackRepository  = (*Feedbacks)(nil)
)
