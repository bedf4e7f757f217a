/*
	Copyright 2021 SANGFOR TECHNOLOGIES

	Licensed under the Apache License, Version 2.0 (the "License");
	you may not use this file except in compliance with the License.
	You may obtain a copy of the License at

		http://www.apache.org/licenses/LICENSE-2.0

	Unless required by applicable law or agreed to in writing, software
	distributed under the License is distributed on an "AS IS" BASIS,
	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
	See the License for the specific language governing permissions and
	limitations under the License.
*/
package dtstruct

import (
	"context"
	"io"
)

// BackupTool wraps the external backup tool. ProduceBackupStream returns the backup stream of the local
// instance, closing it waits for the producer and reports its failure.
type BackupTool interface {
	ProduceBackupStream(ctx context.Context) (io.ReadCloser, error)
	ExtractStream(ctx context.Context, stream io.Reader, dataDir string) error
	Prepare(ctx context.Context, dataDir string) error
}

// ObjectStorage download and upload blobs identified by a bucket uri
type ObjectStorage interface {
	Download(ctx context.Context, uri string) (io.ReadCloser, error)
	Upload(ctx context.Context, uri string, blob io.Reader) error
}

// InstanceClient is the administrative client of the local database instance
type InstanceClient interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, query string, args ...interface{}) error
	MasterStatus(ctx context.Context) (*LogCoordinates, string, error)
	Close() error
}

// StreamSource fetch a backup stream from a peer
type StreamSource interface {
	Fetch(ctx context.Context, host string) (io.ReadCloser, error)
}
