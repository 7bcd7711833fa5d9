// Package upload publishes composed archives and sliced G-code to a
// configured destination.
//
// Two drivers are provided. The fs driver copies files beneath a local root
// with size verification, and the s3 driver stores them as objects through
// the AWS SDK. Both are exposed through the Uploader interface so the
// composer can publish outputs without knowing which backend is active.
package upload
