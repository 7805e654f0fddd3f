package core

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// FileInfo identifies a firmware image for one upload.
type FileInfo struct {
	Bytes     []byte
	Length    int64
	DigestHex string
}

// Chunks reports how many ChunkSize writes the image takes.
func (f *FileInfo) Chunks() int {
	return int((f.Length + ChunkSize - 1) / ChunkSize)
}

// Digest reads path once, feeding the MD5 state ChunkSize bytes at a time.
func Digest(path string) (*FileInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileUnavailable, err)
	}

	if stat.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrFileUnavailable, path)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileUnavailable, err)
	}
	defer file.Close()

	hash := md5.New()
	content := bytes.NewBuffer(make([]byte, 0, stat.Size()))
	buf := make([]byte, ChunkSize)

	_, err = io.CopyBuffer(io.MultiWriter(hash, content), io.LimitReader(file, stat.Size()), buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileUnavailable, err)
	}

	if int64(content.Len()) != stat.Size() {
		return nil, fmt.Errorf("%w: read %d of %d bytes", ErrFileUnavailable, content.Len(), stat.Size())
	}

	return &FileInfo{
		Bytes:     content.Bytes(),
		Length:    stat.Size(),
		DigestHex: hex.EncodeToString(hash.Sum(nil)),
	}, nil
}

// MD5Hex is the digest primitive shared by file identity and authentication.
func MD5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
