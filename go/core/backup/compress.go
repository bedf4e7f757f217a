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
package backup

import (
	"bufio"
	"github.com/klauspost/compress/gzip"
	"io"
)

// Decompress return reader of gzip stream
func Decompress(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

// CompressWriter gzip data written to w, caller must close it to flush the trailer
func CompressWriter(w io.Writer) io.WriteCloser {
	return gzip.NewWriter(w)
}

// IsGzip peek at the stream and report whether it starts with gzip magic number
func IsGzip(r *bufio.Reader) bool {
	magic, err := r.Peek(2)
	return err == nil && magic[0] == 0x1f && magic[1] == 0x8b
}
