//revive:disable-next-line:var-naming // legacy package name used across the project
package model

import "time"

// IAMRole is the internal record for a cloud IAM role that has authenticated
// at least once. One row exists per distinct base role ARN; the row is
// created lazily on first successful authentication and is immutable except
// for the audit fields.
type IAMRole struct {
	ID        string    `json:"id"         db:"id"`
	ARN       string    `json:"arn"        db:"arn"`
	CreatedBy string    `json:"created_by" db:"created_by"`
	UpdatedBy string    `json:"updated_by" db:"updated_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CreateIAMRoleRequest contains fields to register a newly seen role ARN.
type CreateIAMRoleRequest struct {
	ARN       string `json:"arn"`
	CreatedBy string `json:"created_by"`
}

// KMSKey tracks the cloud KMS key provisioned for an (IAM role, region)
// pair. A KMSKey never outlives its IAMRole; the row is deleted and
// recreated when the underlying cloud key becomes unusable.
type KMSKey struct {
	ID        string `json:"id"          db:"id"`
	IAMRoleID string `json:"iam_role_id" db:"iam_role_id"`
	// KeyARN is the cloud-side key identifier.
	KeyARN          string    `json:"key_arn"           db:"key_arn"`
	Region          string    `json:"region"            db:"region"`
	CreatedAt       time.Time `json:"created_at"        db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"        db:"updated_at"`
	LastValidatedAt time.Time `json:"last_validated_at" db:"last_validated_at"`
}

// CreateKMSKeyRequest contains fields to persist a freshly provisioned key.
type CreateKMSKeyRequest struct {
	IAMRoleID string `json:"iam_role_id"`
	KeyARN    string `json:"key_arn"`
	Region    string `json:"region"`
	CreatedBy string `json:"created_by"`
}
