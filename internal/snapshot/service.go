// Package snapshot keeps a git-backed history of scrapbook content. Every
// scrapbook gets its own repository with a single main branch; each recorded
// mutation becomes one commit of the full aggregate as JSON.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"keepsake/api/internal/store"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const contentFile = "scrapbook.json"

// Entry describes one recorded snapshot.
type Entry struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Record commits the aggregate to the scrapbook's repository, initializing
// the repository on first use.
func (s *Service) Record(scrapbookID string, aggregate store.Aggregate, author, message string) error {
	lock := s.scrapbookLock(scrapbookID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openOrInit(scrapbookID)
	if err != nil {
		return err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(aggregate, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	repoRoot := worktree.Filesystem.Root()
	if err := os.WriteFile(filepath.Join(repoRoot, contentFile), append(payload, '\n'), 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if _, err := worktree.Add(contentFile); err != nil {
		return fmt.Errorf("git add snapshot: %w", err)
	}

	if author == "" {
		author = "guest"
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@keepsake.local", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}

	if _, err := repo.Reference(plumbing.NewBranchReferenceName("main"), true); err != nil {
		if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), hash)); err != nil {
			return fmt.Errorf("set main branch ref: %w", err)
		}
		if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
			return fmt.Errorf("set HEAD to main: %w", err)
		}
	}
	return nil
}

// History lists snapshots newest first, up to limit (0 means all).
func (s *Service) History(scrapbookID string, limit int) ([]Entry, error) {
	lock := s.scrapbookLock(scrapbookID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(scrapbookID))
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("open repo: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("resolve head: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	entries := make([]Entry, 0, limit)
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		entries = append(entries, toEntry(commitObj))
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return entries, nil
}

// AggregateAt returns the aggregate as it was at the given commit hash.
func (s *Service) AggregateAt(scrapbookID, hash string) (store.Aggregate, error) {
	lock := s.scrapbookLock(scrapbookID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(scrapbookID))
	if err != nil {
		return store.Aggregate{}, fmt.Errorf("open repo: %w", err)
	}

	resolved, err := resolveHash(repo, hash)
	if err != nil {
		return store.Aggregate{}, err
	}
	commitObj, err := repo.CommitObject(resolved)
	if err != nil {
		return store.Aggregate{}, fmt.Errorf("read commit %s: %w", hash, err)
	}

	file, err := commitObj.File(contentFile)
	if err != nil {
		return store.Aggregate{}, fmt.Errorf("load %s from commit: %w", contentFile, err)
	}
	reader, err := file.Reader()
	if err != nil {
		return store.Aggregate{}, fmt.Errorf("open snapshot reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return store.Aggregate{}, fmt.Errorf("read snapshot bytes: %w", err)
	}
	var aggregate store.Aggregate
	if err := json.Unmarshal(raw, &aggregate); err != nil {
		return store.Aggregate{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return aggregate, nil
}

// Remove deletes the scrapbook's repository, used when the scrapbook itself
// is deleted.
func (s *Service) Remove(scrapbookID string) error {
	lock := s.scrapbookLock(scrapbookID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.RemoveAll(s.repoPath(scrapbookID)); err != nil {
		return fmt.Errorf("remove repo dir: %w", err)
	}
	return nil
}

func (s *Service) openOrInit(scrapbookID string) (*git.Repository, error) {
	path := s.repoPath(scrapbookID)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	return repo, nil
}

func (s *Service) repoPath(scrapbookID string) string {
	return filepath.Join(s.baseDir, scrapbookID)
}

func (s *Service) scrapbookLock(scrapbookID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[scrapbookID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[scrapbookID] = lock
	return lock
}

func toEntry(commitObj *object.Commit) Entry {
	return Entry{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}
