package gh

import (
	"fmt"
	"net/url"
	"strings"
)

// Remote identifies a GitHub-hosted repository parsed from a git remote URL.
type Remote struct {
	Owner string
	Repo  string
}

// ParseRemote extracts owner/repo from a github.com remote URL. Both HTTPS
// (https://github.com/org/repo.git) and SSH (git@github.com:org/repo.git)
// forms are accepted. Remotes hosted elsewhere return an error so callers can
// skip GitHub-specific behavior.
func ParseRemote(remote string) (Remote, error) {
	remote = strings.TrimSpace(remote)
	if remote == "" {
		return Remote{}, fmt.Errorf("remote url is empty")
	}

	var host, repoPath string
	if strings.HasPrefix(remote, "git@") {
		rest := strings.TrimPrefix(remote, "git@")
		var ok bool
		host, repoPath, ok = strings.Cut(rest, ":")
		if !ok {
			return Remote{}, fmt.Errorf("unrecognized ssh remote %q", remote)
		}
	} else {
		parsed, err := url.Parse(remote)
		if err != nil {
			return Remote{}, fmt.Errorf("parse remote url: %w", err)
		}
		host = parsed.Host
		repoPath = strings.TrimPrefix(parsed.Path, "/")
	}

	if !strings.EqualFold(host, "github.com") {
		return Remote{}, fmt.Errorf("remote %q is not hosted on github.com", remote)
	}

	repoPath = strings.TrimSuffix(strings.Trim(repoPath, "/"), ".git")
	parts := strings.Split(repoPath, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Remote{}, fmt.Errorf("remote %q does not name an owner/repo pair", remote)
	}

	return Remote{Owner: parts[0], Repo: parts[1]}, nil
}
