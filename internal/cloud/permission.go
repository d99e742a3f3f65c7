package cloud

import "context"

// EnsurePermission grants perm on function unless a statement with the same
// ID, principal and source ARN is already in place. A statement under the
// same ID that differs is replaced. It reports whether the policy changed.
func EnsurePermission(ctx context.Context, fns Functions, function string, perm Permission) (bool, error) {
	policy, err := fns.GetPolicy(ctx, function)
	if err != nil {
		return false, err
	}
	current, ok := policy[perm.StatementID]
	if ok && current.Principal == perm.Principal && current.SourceARN == perm.SourceARN {
		return false, nil
	}
	if ok {
		if err := fns.RemovePermission(ctx, function, perm.StatementID); err != nil && !IsNotFound(err) {
			return false, err
		}
	}
	if err := fns.AddPermission(ctx, function, perm); err != nil {
		return false, err
	}
	return true, nil
}
