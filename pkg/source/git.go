package source

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"github.com/opencontainers/go-digest"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// GitFetcher fetches documents from Git repositories
type GitFetcher struct {
	cache   *DiskCache
	auth    transport.AuthMethod
	tempDir string
}

// NewGitFetcher creates a new Git fetcher; auth may be nil
func NewGitFetcher(cache *DiskCache, auth transport.AuthMethod) *GitFetcher {
	return &GitFetcher{
		cache:   cache,
		auth:    auth,
		tempDir: os.TempDir(),
	}
}

// Type returns the fetcher type
func (f *GitFetcher) Type() string {
	return GitType
}

// GitRef contains parsed Git reference information
type GitRef struct {
	URL  string
	Ref  string // branch, tag, or commit SHA
	Path string // file or directory within the repository
}

// String returns the reference in its canonical form
func (r *GitRef) String() string {
	s := r.URL
	q := url.Values{}
	if r.Ref != "" {
		q.Set("ref", r.Ref)
	}
	if r.Path != "" {
		q.Set("path", r.Path)
	}
	if len(q) > 0 {
		s += "?" + q.Encode()
	}
	return s
}

// isCommit reports whether the ref looks like a commit SHA rather than a branch or tag
func (r *GitRef) isCommit() bool {
	if len(r.Ref) != 40 && len(r.Ref) != 7 {
		return false
	}
	for _, c := range r.Ref {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return false
		}
	}
	return true
}

// Fetch retrieves a document from a Git repository
// ref format: https://github.com/org/repo.git?ref=v1.0.0&path=topologies/airflow.cue
func (f *GitFetcher) Fetch(ctx context.Context, ref string) (*FetchResult, error) {
	logger := log.FromContext(ctx).WithName("git")

	gitRef, err := parseGitRef(ref)
	if err != nil {
		return nil, fmt.Errorf("invalid Git reference: %w", err)
	}
	key := "git:" + gitRef.String()
	format := FormatFromPath(gitRef.Path)

	if content, commit, err := f.cache.Get(key); err == nil {
		logger.V(1).Info("using cached document", "ref", key, "commit", commit)
		return &FetchResult{
			Content: content,
			Format:  format,
			Digest:  digest.FromBytes(content).String(),
			Source:  fmt.Sprintf("git+%s@%s (cached)", gitRef.URL, short(commit)),
		}, nil
	}

	tmpDir, err := os.MkdirTemp(f.tempDir, "topoc-git-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	repo, err := f.clone(ctx, tmpDir, gitRef)
	if err != nil {
		return nil, err
	}

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD: %w", err)
	}
	commit := head.Hash().String()

	content, err := readDocument(tmpDir, gitRef.Path)
	if err != nil {
		return nil, err
	}
	if info, statErr := os.Stat(filepath.Join(tmpDir, gitRef.Path)); statErr == nil && info.IsDir() {
		format = FormatCUE
	}

	if err := f.cache.Set(key, commit, content); err != nil {
		logger.Error(err, "failed to cache git document", "ref", key)
	}

	logger.V(1).Info("fetched document", "url", gitRef.URL, "commit", commit, "path", gitRef.Path)
	return &FetchResult{
		Content: content,
		Format:  format,
		Digest:  digest.FromBytes(content).String(),
		Source:  fmt.Sprintf("git+%s@%s", gitRef.URL, short(commit)),
	}, nil
}

func (f *GitFetcher) clone(ctx context.Context, dir string, gitRef *GitRef) (*git.Repository, error) {
	opts := &git.CloneOptions{
		URL:      gitRef.URL,
		Auth:     f.auth,
		Depth:    1,
		Progress: io.Discard,
	}

	switch {
	case gitRef.Ref == "":
	case gitRef.isCommit():
		// Arbitrary commits are not reachable from a shallow clone
		opts.Depth = 0
	default:
		opts.ReferenceName = plumbing.NewBranchReferenceName(gitRef.Ref)
		opts.SingleBranch = true
	}

	repo, err := git.PlainCloneContext(ctx, dir, false, opts)
	if err != nil && opts.ReferenceName.IsBranch() {
		// Not a branch; retry as a tag in a fresh directory
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			return nil, fmt.Errorf("failed to reset clone dir: %w", rmErr)
		}
		opts.ReferenceName = plumbing.NewTagReferenceName(gitRef.Ref)
		repo, err = git.PlainCloneContext(ctx, dir, false, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to clone %s: %w", gitRef.URL, err)
	}

	if gitRef.isCommit() {
		worktree, err := repo.Worktree()
		if err != nil {
			return nil, fmt.Errorf("failed to get worktree: %w", err)
		}
		hash, err := repo.ResolveRevision(plumbing.Revision(gitRef.Ref))
		if err != nil {
			return nil, fmt.Errorf("failed to resolve revision %s: %w", gitRef.Ref, err)
		}
		if err := worktree.Checkout(&git.CheckoutOptions{Hash: *hash}); err != nil {
			return nil, fmt.Errorf("failed to checkout commit: %w", err)
		}
	}
	return repo, nil
}

// parseGitRef parses a Git reference string
// Format: https://github.com/org/repo.git?ref=v1.0.0&path=topologies/airflow.cue
func parseGitRef(ref string) (*GitRef, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("git URL %q has no scheme", ref)
	}

	query := u.Query()
	u.RawQuery = ""
	cleanURL := u.String()

	if !strings.HasSuffix(cleanURL, ".git") && u.Scheme != "file" {
		cleanURL += ".git"
	}

	return &GitRef{
		URL:  cleanURL,
		Ref:  query.Get("ref"),
		Path: query.Get("path"),
	}, nil
}

// readDocument reads a single file, or concatenates the .cue files of a directory
func readDocument(root, rel string) ([]byte, error) {
	target := filepath.Join(root, filepath.FromSlash(rel))
	within, err := filepath.Rel(root, target)
	if err != nil || within == ".." || strings.HasPrefix(within, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("path %q escapes the repository", rel)
	}

	info, err := os.Stat(target)
	if err != nil {
		return nil, fmt.Errorf("path %q not found in repository: %w", rel, err)
	}
	if !info.IsDir() {
		return os.ReadFile(target)
	}

	var content []byte
	err = filepath.WalkDir(target, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		// Skip hidden directories (like .git)
		if d.IsDir() && strings.HasPrefix(d.Name(), ".") && path != target {
			return filepath.SkipDir
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".cue") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		if len(content) > 0 {
			content = append(content, '\n')
		}
		content = append(content, data...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("no .cue files found in %q", rel)
	}
	return content, nil
}

// GitAuth builds clone credentials. A token takes precedence over an SSH key.
func GitAuth(token, sshKeyFile, passphrase string) (transport.AuthMethod, error) {
	switch {
	case token != "":
		return &http.BasicAuth{
			Username: "x-access-token", // Works for GitHub, GitLab
			Password: token,
		}, nil
	case sshKeyFile != "":
		keys, err := ssh.NewPublicKeysFromFile("git", sshKeyFile, passphrase)
		if err != nil {
			return nil, fmt.Errorf("failed to load SSH key %s: %w", sshKeyFile, err)
		}
		return keys, nil
	default:
		return nil, nil
	}
}

func short(commit string) string {
	if len(commit) > 7 {
		return commit[:7]
	}
	return commit
}
