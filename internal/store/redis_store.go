package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prospectlens/api/internal/model"
)

// maxTxRetries bounds optimistic-lock retries on a contended key.
const maxTxRetries = 16

var ErrContention = errors.New("store: write contention, giving up")

// Store is the redis-backed document store for sessions, jobs, prospects and
// briefs. Every read-modify-write goes through WATCH/MULTI so concurrent
// writers never lose updates.
type Store struct {
	rdb       *redis.Client
	now       func() time.Time
	retention time.Duration
}

type Option func(*Store)

// WithClock overrides the clock used for job timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithRetention sets how long session documents live after their last write.
func WithRetention(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.retention = d
		}
	}
}

func New(rdb *redis.Client, opts ...Option) *Store {
	s := &Store{
		rdb:       rdb,
		now:       time.Now,
		retention: 7 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the store clock's current time.
func (s *Store) Now() time.Time {
	return s.now()
}

// Ping checks connectivity to redis.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func sessionKey(id string) string { return "session:" + id }

func dedupKey(owner *string, hash string) string {
	who := "anon"
	if owner != nil {
		who = *owner
	}
	return fmt.Sprintf("session:dedup:%s:%s", who, hash)
}

func jobKey(id string) string              { return "job:" + id }
func jobsKey(sessionID string) string      { return fmt.Sprintf("session:%s:jobs", sessionID) }
func jobSeqKey(sessionID string) string    { return fmt.Sprintf("session:%s:jobseq", sessionID) }
func prospectsKey(sessionID string) string { return fmt.Sprintf("session:%s:prospects", sessionID) }
func prospectSeqKey(sessionID string) string {
	return fmt.Sprintf("session:%s:prospectseq", sessionID)
}
func prospectKey(sessionID, key string) string {
	return fmt.Sprintf("prospect:%s:%s", sessionID, key)
}
func briefKey(sessionID string) string { return "brief:" + sessionID }

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readJSON(ctx context.Context, r getter, key string, v any) error {
	data, err := r.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// watch runs fn under WATCH on keys, retrying when the transaction loses a race.
func (s *Store) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return ErrContention
}

// updateJSON loads the document at key, lets fn mutate it and writes it back
// only if fn reports a change. With create set, a missing document is passed
// to fn as the zero value instead of failing with ErrNotFound.
func updateJSON[T any](ctx context.Context, s *Store, key string, create bool, fn func(v *T) (bool, error)) (*T, error) {
	var out *T
	err := s.watch(ctx, func(tx *redis.Tx) error {
		out = nil
		var v T
		if err := readJSON(ctx, tx, key, &v); err != nil {
			if !create || !errors.Is(err, model.ErrNotFound) {
				return err
			}
		}
		write, err := fn(&v)
		if err != nil {
			return err
		}
		out = &v
		if !write {
			return nil
		}
		data, err := json.Marshal(&v)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.retention)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func listJSON[T any](ctx context.Context, rdb *redis.Client, indexKey string, docKey func(string) string) ([]T, error) {
	ids, err := rdb.ZRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = docKey(id)
	}
	vals, err := rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, raw := range vals {
		str, ok := raw.(string)
		if !ok {
			continue // expired between ZRANGE and MGET
		}
		var v T
		if err := json.Unmarshal([]byte(str), &v); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", keys[i], err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Sessions

// CreateSession persists sess unless the same owner created a session with
// the same criteria hash inside window. In that case the earlier session is
// returned with existing=true and nothing is written.
func (s *Store) CreateSession(ctx context.Context, sess *model.Session, window time.Duration) (*model.Session, bool, error) {
	data, err := json.Marshal(sess)
	if err != nil {
		return nil, false, err
	}
	if window <= 0 {
		if err := s.rdb.Set(ctx, sessionKey(sess.ID), data, s.retention).Err(); err != nil {
			return nil, false, err
		}
		return sess, false, nil
	}

	dk := dedupKey(sess.OwnerID, sess.CriteriaHash)
	var existing *model.Session
	err = s.watch(ctx, func(tx *redis.Tx) error {
		existing = nil
		id, err := tx.Get(ctx, dk).Result()
		switch {
		case err == nil:
			var found model.Session
			err := readJSON(ctx, tx, sessionKey(id), &found)
			if err == nil {
				existing = &found
				return nil
			}
			if !errors.Is(err, model.ErrNotFound) {
				return err
			}
			// the session expired before its dedup marker; replace the marker
		case !errors.Is(err, redis.Nil):
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, sessionKey(sess.ID), data, s.retention)
			pipe.Set(ctx, dk, sess.ID, window)
			return nil
		})
		return err
	}, dk)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, true, nil
	}
	return sess, false, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var sess model.Session
	if err := readJSON(ctx, s.rdb, sessionKey(id), &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// UpdateSession applies fn to the stored session under an optimistic lock.
func (s *Store) UpdateSession(ctx context.Context, id string, fn func(sess *model.Session) (bool, error)) (*model.Session, error) {
	return updateJSON(ctx, s, sessionKey(id), false, fn)
}

// Jobs

// EnqueueJob assigns the next per-session sequence number to job and stores it.
func (s *Store) EnqueueJob(ctx context.Context, job *model.Job) error {
	seq, err := s.rdb.Incr(ctx, jobSeqKey(job.SessionID)).Result()
	if err != nil {
		return fmt.Errorf("failed to allocate job sequence: %w", err)
	}
	job.Seq = seq

	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.queueJobWrite(ctx, pipe, job, data)
		return nil
	})
	return err
}

func (s *Store) queueJobWrite(ctx context.Context, pipe redis.Pipeliner, job *model.Job, data []byte) {
	pipe.Set(ctx, jobKey(job.ID), data, s.retention)
	pipe.ZAdd(ctx, jobsKey(job.SessionID), redis.Z{Score: float64(job.Seq), Member: job.ID})
	pipe.Expire(ctx, jobsKey(job.SessionID), s.retention)
	pipe.Expire(ctx, jobSeqKey(job.SessionID), s.retention)
}

func (s *Store) GetJob(ctx context.Context, id string) (*model.Job, error) {
	var job model.Job
	if err := readJSON(ctx, s.rdb, jobKey(id), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs returns the session's jobs in creation order.
func (s *Store) ListJobs(ctx context.Context, sessionID string) ([]model.Job, error) {
	return listJSON[model.Job](ctx, s.rdb, jobsKey(sessionID), jobKey)
}

// TransitionJob moves a job from one status to the next only if its stored
// status still equals from, and, when upd.Attempt is set, only if the job is
// still on that attempt. won is false when another writer got there first.
func (s *Store) TransitionJob(ctx context.Context, id string, from, to model.JobStatus, upd model.JobUpdate) (job *model.Job, won bool, err error) {
	if !model.CanTransition(from, to) {
		return nil, false, fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, from, to)
	}
	job, err = updateJSON(ctx, s, jobKey(id), false, func(j *model.Job) (bool, error) {
		won = false
		if !ownsJob(j, from, upd.Attempt) {
			return false, nil
		}
		applyTransition(j, to, upd, s.now())
		won = true
		return true, nil
	})
	return job, won, err
}

func ownsJob(j *model.Job, status model.JobStatus, attempt int) bool {
	return j.Status == status && (attempt == 0 || j.Attempts == attempt)
}

func applyTransition(j *model.Job, to model.JobStatus, upd model.JobUpdate, now time.Time) {
	j.Status = to
	if upd.Progress != nil {
		j.Progress = *upd.Progress
	}
	switch to {
	case model.JobStatusRunning:
		j.StartedAt = &now
		j.Attempts++
	case model.JobStatusComplete:
		j.Progress = 100
		j.FinishedAt = &now
	case model.JobStatusFailed:
		j.FinishedAt = &now
		if upd.Error != "" {
			msg := upd.Error
			j.Error = &msg
		}
	}
}

// FinishDossierJob moves a running dossier job to a terminal status and
// applies fn to its prospect in the same transaction. Nothing is written
// unless the job is still running upd.Attempt (any attempt when zero), so a
// superseded run can never overwrite the outcome of a newer one. A missing
// prospect is skipped.
func (s *Store) FinishDossierJob(ctx context.Context, job *model.Job, to model.JobStatus, upd model.JobUpdate, fn func(p *model.Prospect)) (bool, error) {
	if !model.CanTransition(model.JobStatusRunning, to) {
		return false, fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, model.JobStatusRunning, to)
	}
	jk, pk := jobKey(job.ID), prospectKey(job.SessionID, job.TargetKey)
	won := false
	err := s.watch(ctx, func(tx *redis.Tx) error {
		won = false
		var cur model.Job
		if err := readJSON(ctx, tx, jk, &cur); err != nil {
			return err
		}
		if !ownsJob(&cur, model.JobStatusRunning, upd.Attempt) {
			return nil
		}
		applyTransition(&cur, to, upd, s.now())
		jobData, err := json.Marshal(&cur)
		if err != nil {
			return err
		}

		var prospectData []byte
		var p model.Prospect
		switch err := readJSON(ctx, tx, pk, &p); {
		case err == nil:
			fn(&p)
			if prospectData, err = json.Marshal(&p); err != nil {
				return err
			}
		case !errors.Is(err, model.ErrNotFound):
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if prospectData != nil {
				pipe.Set(ctx, pk, prospectData, s.retention)
			}
			pipe.Set(ctx, jk, jobData, s.retention)
			return nil
		})
		if err == nil {
			won = true
		}
		return err
	}, jk, pk)
	return won, err
}

// ReclaimJob re-stamps a running job whose StartedAt still equals startedAt,
// counting a new attempt. Used to recover work whose dispatcher died.
func (s *Store) ReclaimJob(ctx context.Context, id string, startedAt time.Time) (*model.Job, bool, error) {
	return s.casRunning(ctx, id, startedAt, func(j *model.Job, now time.Time) {
		j.StartedAt = &now
		j.Attempts++
		j.Progress = 0
	})
}

// FailStaleJob fails a running job whose StartedAt still equals startedAt.
func (s *Store) FailStaleJob(ctx context.Context, id string, startedAt time.Time, msg string) (*model.Job, bool, error) {
	return s.casRunning(ctx, id, startedAt, func(j *model.Job, now time.Time) {
		j.Status = model.JobStatusFailed
		j.FinishedAt = &now
		j.Error = &msg
	})
}

func (s *Store) casRunning(ctx context.Context, id string, startedAt time.Time, apply func(j *model.Job, now time.Time)) (job *model.Job, won bool, err error) {
	job, err = updateJSON(ctx, s, jobKey(id), false, func(j *model.Job) (bool, error) {
		won = false
		if j.Status != model.JobStatusRunning || j.StartedAt == nil || !j.StartedAt.Equal(startedAt) {
			return false, nil
		}
		apply(j, s.now())
		won = true
		return true, nil
	})
	return job, won, err
}

// Prospects

// UpsertProspect inserts p, or merges it into the prospect already stored
// under the same key. A merge only fills fields the stored prospect lacks and
// never touches dossier state. When p is new and job is non-nil, job is
// enqueued in the same transaction, so a stored prospect always has its job.
// created reports whether p was new.
func (s *Store) UpsertProspect(ctx context.Context, p *model.Prospect, job *model.Job) (out *model.Prospect, created bool, err error) {
	key := prospectKey(p.SessionID, p.Key)
	err = s.watch(ctx, func(tx *redis.Tx) error {
		out, created = nil, false
		var cur model.Prospect
		var jobData []byte
		err := readJSON(ctx, tx, key, &cur)
		switch {
		case err == nil:
			mergeProspect(&cur, p)
		case errors.Is(err, model.ErrNotFound):
			seq, err := tx.Incr(ctx, prospectSeqKey(p.SessionID)).Result()
			if err != nil {
				return err
			}
			cur = *p
			cur.Seq = seq
			created = true
			if job != nil {
				if job.Seq, err = tx.Incr(ctx, jobSeqKey(job.SessionID)).Result(); err != nil {
					return err
				}
				if jobData, err = json.Marshal(job); err != nil {
					return err
				}
			}
		default:
			return err
		}

		data, err := json.Marshal(&cur)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.retention)
			if created {
				pipe.ZAdd(ctx, prospectsKey(p.SessionID), redis.Z{Score: float64(cur.Seq), Member: p.Key})
				pipe.Expire(ctx, prospectsKey(p.SessionID), s.retention)
				pipe.Expire(ctx, prospectSeqKey(p.SessionID), s.retention)
			}
			if jobData != nil {
				s.queueJobWrite(ctx, pipe, job, jobData)
			}
			return nil
		})
		if err != nil {
			return err
		}
		out = &cur
		return nil
	}, key)
	if err != nil {
		return nil, false, err
	}
	return out, created, nil
}

func mergeProspect(dst, src *model.Prospect) {
	if dst.Category == "" {
		dst.Category = src.Category
	}
	if dst.Latitude == nil {
		dst.Latitude = src.Latitude
	}
	if dst.Longitude == nil {
		dst.Longitude = src.Longitude
	}
	if dst.Rationale == "" {
		dst.Rationale = src.Rationale
	}
}

func (s *Store) GetProspect(ctx context.Context, sessionID, key string) (*model.Prospect, error) {
	var p model.Prospect
	if err := readJSON(ctx, s.rdb, prospectKey(sessionID, key), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProspects returns the session's prospects in discovery order.
func (s *Store) ListProspects(ctx context.Context, sessionID string) ([]model.Prospect, error) {
	return listJSON[model.Prospect](ctx, s.rdb, prospectsKey(sessionID), func(key string) string {
		return prospectKey(sessionID, key)
	})
}

func (s *Store) UpdateProspect(ctx context.Context, sessionID, key string, fn func(p *model.Prospect) (bool, error)) (*model.Prospect, error) {
	return updateJSON(ctx, s, prospectKey(sessionID, key), false, fn)
}

// Advantage briefs

// GetBrief returns the session's brief record, or ErrNotFound when none was
// ever requested.
func (s *Store) GetBrief(ctx context.Context, sessionID string) (*model.AdvantageBrief, error) {
	var b model.AdvantageBrief
	if err := readJSON(ctx, s.rdb, briefKey(sessionID), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// UpdateBrief applies fn to the session's brief record, creating it on first
// use. fn sees a zero-value record with an empty ID when none exists.
func (s *Store) UpdateBrief(ctx context.Context, sessionID string, fn func(b *model.AdvantageBrief) (bool, error)) (*model.AdvantageBrief, error) {
	return updateJSON(ctx, s, briefKey(sessionID), true, fn)
}
