package publish

import (
	"fmt"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/herald/internal/apperr"
)

var (
	nameRule   = validation.Match(regexp.MustCompile(`^[A-Za-z0-9_.-]+$`))
	branchRule = validation.Match(regexp.MustCompile(`^[A-Za-z0-9_./-]+$`))
)

// RepoConfig identifies the remote repository and where content lands in it.
type RepoConfig struct {
	Owner string
	Repo  string
	// BranchRoot prefixes every publish branch name.
	BranchRoot string
	// ContentPath is the directory inside the repository receiving files.
	ContentPath string
	// BaseBranch overrides the repository default branch when set.
	BaseBranch string
}

// Validate reports configuration errors wrapped in apperr.ErrConfig.
func (c RepoConfig) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Owner, validation.Required, nameRule),
		validation.Field(&c.Repo, validation.Required, nameRule),
		validation.Field(&c.BranchRoot, validation.Required, branchRule),
		validation.Field(&c.BaseBranch, branchRule),
	)
	if err != nil {
		return fmt.Errorf("%w: remote: %v", apperr.ErrConfig, err)
	}
	return nil
}
