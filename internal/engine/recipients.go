// internal/engine/recipients.go
package engine

import "context"

/*
 * Notification recipient fan-out.
 *
 * Notify actions address users, roles and departments. Resolution expands
 * roles and departments to concrete user ids through the Directory
 * collaborator and deduplicates the union, preserving first-seen order so
 * explicitly named users lead the list.
 *
 * Resolution is pure relative to the directory: no delivery transport is
 * touched here, which keeps fan-out testable without a mail server.
 */

// Directory resolves organizational groupings to concrete user ids.
// Supplied by the domain's HR/user module.
type Directory interface {
	UsersByRole(ctx context.Context, role string) ([]string, error)
	UsersByDepartment(ctx context.Context, department string) ([]string, error)
}

// ResolveRecipients expands a notify action's parameters into a
// deduplicated recipient list. Unknown roles and departments resolve to
// nothing; a nil directory leaves only the explicit users.
func ResolveRecipients(ctx context.Context, dir Directory, params map[string]any) ([]string, error) {
	seen := make(map[string]bool)
	var recipients []string

	add := func(users []string) {
		for _, u := range users {
			if u == "" || seen[u] {
				continue
			}
			seen[u] = true
			recipients = append(recipients, u)
		}
	}

	add(stringList(params["notify_users"]))

	if dir != nil {
		for _, role := range stringList(params["notify_roles"]) {
			users, err := dir.UsersByRole(ctx, role)
			if err != nil {
				return recipients, err
			}
			add(users)
		}
		for _, dept := range stringList(params["notify_departments"]) {
			users, err := dir.UsersByDepartment(ctx, dept)
			if err != nil {
				return recipients, err
			}
			add(users)
		}
	}

	return recipients, nil
}

// stringList coerces a decoded JSON parameter to a string slice: a list of
// strings, a single string, or nothing.
func stringList(v any) []string {
	switch val := v.(type) {
	case []any:
		out := make([]string, 0, len(val))
		for _, e := range val {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return val
	case string:
		if val == "" {
			return nil
		}
		return []string{val}
	default:
		return nil
	}
}
