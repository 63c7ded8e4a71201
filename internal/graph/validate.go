package graph

import (
	"errors"
	"fmt"
)

// Validate checks a front-end result against the model invariants. An empty
// result is valid.
func Validate(r *Result) error {
	if len(r.Entities) == 0 {
		if len(r.Relationships) > 0 || len(r.Pending) > 0 {
			return errors.New("empty result carries relationships")
		}
		return nil
	}

	var errs []error
	files := 0
	for id, e := range r.Entities {
		if id != e.ID {
			errs = append(errs, fmt.Errorf("entity keyed %q has id %q", id, e.ID))
		}
		if e.FilePath != r.FilePath {
			errs = append(errs, fmt.Errorf("entity %s belongs to %q, not %q", e.ID, e.FilePath, r.FilePath))
		}
		if e.Kind == KindFile {
			files++
			if e.ID != FileID(r.FilePath) || e.StartLine != 0 {
				errs = append(errs, fmt.Errorf("malformed file entity %s", e.ID))
			}
			continue
		}
		if e.Name == "" {
			errs = append(errs, fmt.Errorf("entity %s has no name", e.ID))
		}
		if e.ID != EntityID(e.Kind, e.FilePath, e.Name, e.StartLine) {
			errs = append(errs, fmt.Errorf("entity %s id does not match its fields", e.ID))
		}
		if e.StartLine < 1 || e.EndLine < e.StartLine {
			errs = append(errs, fmt.Errorf("entity %s has span %d..%d", e.ID, e.StartLine, e.EndLine))
		}
	}
	if files != 1 {
		errs = append(errs, fmt.Errorf("want exactly one File entity, got %d", files))
	}

	kindOf := func(id string) (EntityKind, bool) {
		e, ok := r.Entities[id]
		if !ok {
			return "", false
		}
		return e.Kind, true
	}
	for _, rel := range r.Relationships {
		src, ok := kindOf(rel.SourceID)
		if !ok {
			errs = append(errs, fmt.Errorf("%s: unknown source", rel))
			continue
		}
		dst, dstLocal := kindOf(rel.TargetID)
		switch rel.Kind {
		case RelContains:
			if src != KindFile {
				errs = append(errs, fmt.Errorf("%s: CONTAINS source must be a File", rel))
			}
		case RelDefines:
			if !src.ClassLike() || (dst != KindFunction && dst != KindVariable) {
				errs = append(errs, fmt.Errorf("%s: DEFINES must link a class to a member", rel))
			}
		case RelExtends:
			if !src.ClassLike() || (dstLocal && !dst.ClassLike()) {
				errs = append(errs, fmt.Errorf("%s: EXTENDS must link two classes", rel))
			}
		}
	}
	for _, p := range r.Pending {
		if _, ok := r.Entities[p.OriginID]; !ok {
			errs = append(errs, fmt.Errorf("pending %s %q has unknown origin %s", p.Kind, p.Name, p.OriginID))
		}
	}
	for _, ex := range r.Exports {
		if _, ok := r.Entities[ex.EntityID]; !ok {
			errs = append(errs, fmt.Errorf("export %q points at unknown entity %s", ex.Name, ex.EntityID))
		}
	}
	if len(r.Conflicts) > 0 {
		errs = append(errs, fmt.Errorf("conflicting entity ids: %v", r.Conflicts))
	}
	return errors.Join(errs...)
}
