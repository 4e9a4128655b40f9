// Package arn provides pure parsing and classification of cloud IAM
// principal identifiers. It has no side effects and no dependencies beyond
// the SDK's ARN splitter; everything the trust engine knows about ARN shapes
// lives here.
package arn

import (
	"errors"
	"fmt"
	"strings"

	awsarn "github.com/aws/aws-sdk-go-v2/aws/arn"
)

// ErrInvalidPrincipal is returned when an ARN is malformed, has an
// unexpected shape for the requested conversion, or belongs to a partition
// this deployment does not trust.
var ErrInvalidPrincipal = errors.New("invalid IAM principal ARN")

// allowedPartitions are the cloud partitions principals may come from.
var allowedPartitions = map[string]struct{}{
	"aws":        {},
	"aws-cn":     {},
	"aws-us-gov": {},
}

// grantResourceTypes are the resource types accepted for permission-grant
// storage. Instance profiles are deliberately absent: they are accepted only
// for deriving a role name, never for storage in policies.
var grantResourceTypes = map[string]struct{}{
	"role":           {},
	"user":           {},
	"federated-user": {},
	"assumed-role":   {},
}

// IsRoleARN reports whether s is a permanent IAM role ARN
// (arn:<partition>:iam::<account>:role/<name>).
func IsRoleARN(s string) bool {
	a, err := awsarn.Parse(s)
	if err != nil {
		return false
	}
	return a.Service == "iam" &&
		a.AccountID != "" &&
		strings.HasPrefix(a.Resource, "role/") &&
		len(a.Resource) > len("role/")
}

// IsAssumedRoleARN reports whether s is a short-lived assumed-role session
// ARN (arn:<partition>:sts::<account>:assumed-role/<role>/<session>).
func IsAssumedRoleARN(s string) bool {
	a, err := awsarn.Parse(s)
	if err != nil {
		return false
	}
	if a.Service != "sts" || a.AccountID == "" {
		return false
	}
	parts := strings.Split(a.Resource, "/")
	return len(parts) == 3 && parts[0] == "assumed-role" && parts[1] != "" && parts[2] != ""
}

// IsRootARN reports whether s is an account root ARN
// (arn:<partition>:iam::<account>:root).
func IsRootARN(s string) bool {
	a, err := awsarn.Parse(s)
	if err != nil {
		return false
	}
	return a.Service == "iam" && a.AccountID != "" && a.Resource == "root"
}

// RoleARNFromAssumedRole strips the session-name segment from an
// assumed-role session ARN and returns the permanent role ARN it was
// derived from.
func RoleARNFromAssumedRole(s string) (string, error) {
	if !IsAssumedRoleARN(s) {
		return "", fmt.Errorf("%w: %q is not an assumed-role ARN", ErrInvalidPrincipal, s)
	}
	a, err := awsarn.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPrincipal, err)
	}
	parts := strings.Split(a.Resource, "/")
	return fmt.Sprintf("arn:%s:iam::%s:role/%s", a.Partition, a.AccountID, parts[1]), nil
}

// CanonicalRoleARN derives the permanent role ARN a principal resolves to.
// Role ARNs pass through; assumed-role sessions and instance profiles are
// rewritten to the underlying role.
func CanonicalRoleARN(s string) (string, error) {
	if IsRoleARN(s) {
		return s, nil
	}
	if IsAssumedRoleARN(s) {
		return RoleARNFromAssumedRole(s)
	}
	a, err := awsarn.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPrincipal, err)
	}
	if a.Service == "iam" && a.AccountID != "" && strings.HasPrefix(a.Resource, "instance-profile/") {
		parts := strings.Split(a.Resource, "/")
		name := parts[len(parts)-1]
		if name != "" {
			return fmt.Sprintf("arn:%s:iam::%s:role/%s", a.Partition, a.AccountID, name), nil
		}
	}
	return "", fmt.Errorf("%w: no role form for %q", ErrInvalidPrincipal, s)
}

// RootARN derives the owning account's root ARN from any principal ARN.
func RootARN(s string) (string, error) {
	a, err := awsarn.Parse(s)
	if err != nil || a.AccountID == "" {
		return "", fmt.Errorf("%w: cannot derive root ARN from %q", ErrInvalidPrincipal, s)
	}
	return fmt.Sprintf("arn:%s:iam::%s:root", a.Partition, a.AccountID), nil
}

// AccountID extracts the numeric account id from the ARN.
func AccountID(s string) (string, error) {
	a, err := awsarn.Parse(s)
	if err != nil || a.AccountID == "" {
		return "", fmt.Errorf("%w: cannot extract account id from %q", ErrInvalidPrincipal, s)
	}
	return a.AccountID, nil
}

// RoleName derives a role name from an IAM or STS principal ARN. The
// accepted shapes are wider than the grant pattern (instance profiles and
// path-qualified roles are fine here), but `group` is explicitly rejected as
// a resource type.
func RoleName(s string) (string, error) {
	a, err := awsarn.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPrincipal, err)
	}
	if (a.Service != "iam" && a.Service != "sts") || a.AccountID == "" {
		return "", fmt.Errorf("%w: cannot derive role name from %q", ErrInvalidPrincipal, s)
	}
	parts := strings.Split(a.Resource, "/")
	if len(parts) < 2 || parts[0] == "group" {
		return "", fmt.Errorf("%w: cannot derive role name from %q", ErrInvalidPrincipal, s)
	}
	name := parts[len(parts)-1]
	if a.Service == "sts" && parts[0] == "assumed-role" {
		// assumed-role/<role>/<session>: the role name is the middle segment.
		name = parts[1]
	}
	if name == "" {
		return "", fmt.Errorf("%w: cannot derive role name from %q", ErrInvalidPrincipal, s)
	}
	return name, nil
}

// IsApprovedForGrant reports whether s may be stored in a permission grant.
// The accepted shapes are wider than canonical role form for backward
// compatibility: role, user, federated-user, and assumed-role principals
// with a non-empty trailing segment and no trailing whitespace all pass.
func IsApprovedForGrant(s string) bool {
	if s != strings.TrimRight(s, " \t\r\n") {
		return false
	}
	a, err := awsarn.Parse(s)
	if err != nil {
		return false
	}
	if a.Service != "iam" && a.Service != "sts" {
		return false
	}
	if a.AccountID == "" {
		return false
	}
	resourceType, rest, ok := strings.Cut(a.Resource, "/")
	if !ok || rest == "" || strings.HasSuffix(rest, "/") {
		return false
	}
	_, ok = grantResourceTypes[resourceType]
	return ok
}

// CheckPartition fails with ErrInvalidPrincipal when the ARN's partition is
// not one this deployment trusts.
func CheckPartition(s string) error {
	a, err := awsarn.Parse(s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPrincipal, err)
	}
	if _, ok := allowedPartitions[a.Partition]; !ok {
		return fmt.Errorf("%w: unsupported partition %q", ErrInvalidPrincipal, a.Partition)
	}
	return nil
}
