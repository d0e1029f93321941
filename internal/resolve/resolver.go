// Package resolve turns a resource descriptor into an ordered list of
// concrete candidate paths. Explicit templates rank first; implicit
// locations (user profile, application directory, temp) follow so a
// resource always has somewhere to land.
package resolve

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/haven-project/haven/pkg/errclass"
	"github.com/haven-project/haven/pkg/model"
	"github.com/haven-project/haven/pkg/pathutil"
	"github.com/haven-project/haven/pkg/template"
)

// Resolver expands candidate templates for resources of one application.
type Resolver struct {
	appName string
	log     zerolog.Logger
}

// NewResolver creates a resolver for the given application name.
func NewResolver(appName string, log zerolog.Logger) *Resolver {
	return &Resolver{appName: appName, log: log}
}

// Resolve produces the ordered candidate list for a descriptor. Explicit
// templates keep their declared order ahead of the implicit tier. Templates
// whose placeholders cannot be expanded are skipped, not fatal; a descriptor
// that yields no candidates at all is a configuration error.
func (r *Resolver) Resolve(ctx context.Context, desc model.ResourceDescriptor) ([]model.Candidate, error) {
	if err := pathutil.ValidateName(desc.Name); err != nil {
		return nil, err
	}
	if !desc.Kind.Valid() {
		return nil, errclass.ErrConfiguration.WithMessagef("unknown resource kind %q", desc.Kind)
	}
	if !desc.Mode.Valid() {
		return nil, errclass.ErrConfiguration.WithMessagef("unknown access mode %q", desc.Mode)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var candidates []model.Candidate
	seen := make(map[string]bool)

	add := func(path string, origin model.CandidateOrigin) {
		if seen[path] {
			return
		}
		seen[path] = true
		candidates = append(candidates, model.Candidate{
			Path:             path,
			Origin:           origin,
			Rank:             len(candidates),
			CreationRequired: parentMissing(path),
		})
	}

	for _, tmpl := range desc.CandidateTemplates {
		path, err := template.Expand(tmpl, r.appName)
		if err != nil {
			r.log.Warn().Str("resource", desc.Name).Str("template", tmpl).
				Err(err).Msg("skipping unexpandable candidate template")
			continue
		}
		add(path, model.OriginExplicit)
	}

	for _, impl := range r.implicitCandidates(desc) {
		add(impl.path, impl.origin)
	}

	if len(candidates) == 0 {
		return nil, errclass.ErrConfiguration.WithMessagef(
			"resource %s: no usable candidate paths", desc.Name)
	}

	for _, c := range candidates {
		r.log.Debug().Str("resource", desc.Name).Str("path", c.Path).
			Stringer("origin", c.Origin).Int("rank", c.Rank).
			Bool("creation_required", c.CreationRequired).
			Msg("resolved candidate")
	}

	return candidates, nil
}

type implicitCandidate struct {
	path   string
	origin model.CandidateOrigin
}

// implicitCandidates mirrors the priority order used for explicit templates:
// user profile first, then the application's own directory, then temp.
func (r *Resolver) implicitCandidates(desc model.ResourceDescriptor) []implicitCandidate {
	filename := desc.Name + defaultExtension(desc.Kind)
	var out []implicitCandidate

	if cfgDir, err := os.UserConfigDir(); err == nil {
		out = append(out, implicitCandidate{
			path:   filepath.Join(cfgDir, r.appName, filename),
			origin: model.OriginUserProfile,
		})
	}

	if exe, err := os.Executable(); err == nil {
		out = append(out, implicitCandidate{
			path:   filepath.Join(filepath.Dir(exe), filename),
			origin: model.OriginAppDir,
		})
	}
	if wd, err := os.Getwd(); err == nil {
		out = append(out, implicitCandidate{
			path:   filepath.Join(wd, filename),
			origin: model.OriginAppDir,
		})
	}

	out = append(out, implicitCandidate{
		path:   filepath.Join(os.TempDir(), r.appName, filename),
		origin: model.OriginTempDir,
	})

	return out
}

// EnsureParent creates the candidate's parent directory when the descriptor's
// mode permits creation.
func (r *Resolver) EnsureParent(candidate model.Candidate, mode model.AccessMode) error {
	if !candidate.CreationRequired {
		return nil
	}
	if !mode.AllowsCreate() {
		return errclass.ErrNotFound.WithMessagef(
			"parent directory of %s does not exist and mode %s forbids creation",
			candidate.Path, mode)
	}
	if err := os.MkdirAll(filepath.Dir(candidate.Path), 0755); err != nil {
		return fmt.Errorf("create candidate parent: %w", err)
	}
	return nil
}

func defaultExtension(kind model.ResourceKind) string {
	switch kind {
	case model.KindDatabase:
		return ".db"
	case model.KindBundle:
		return ""
	default:
		return ".dat"
	}
}

func parentMissing(path string) bool {
	_, err := os.Stat(filepath.Dir(path))
	return os.IsNotExist(err)
}
