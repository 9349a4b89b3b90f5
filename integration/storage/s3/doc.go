// Package s3 stores rendered certificate artifacts in Amazon S3 or any
// S3-compatible service (MinIO, Wasabi, Cloudflare R2).
//
// Object keys follow a fixed convention owned by this package:
//
//	{tenantNamespace}/certificates/{year}/{month}/{certificateID}.pdf
//
// The namespace prefix makes per-tenant auditing and cleanup possible at the
// storage level without consulting the database. Certificates are served to
// end users through short-lived signed URLs; the bucket stays private.
package s3
