package handler

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

const (
	jobCursorPrefix    = "job"
	workerCursorPrefix = "worker"
)

// DecodeJobCursor returns the job id after which the next page starts
func DecodeJobCursor(cursorStr string) (uint64, error) {
	value, err := decodeCursor(cursorStr, jobCursorPrefix)
	if err != nil || value == "" {
		return 0, err
	}
	id, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid job id in cursor: %w", err)
	}
	return id, nil
}

func EncodeJobCursor(lastID uint64) string {
	return encodeCursor(jobCursorPrefix, strconv.FormatUint(lastID, 10))
}

// DecodeWorkerCursor returns the address after which the next page starts
func DecodeWorkerCursor(cursorStr string) (string, error) {
	return decodeCursor(cursorStr, workerCursorPrefix)
}

func EncodeWorkerCursor(lastAddress string) string {
	return encodeCursor(workerCursorPrefix, lastAddress)
}

func encodeCursor(prefix, value string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(prefix + "|" + value))
}

func decodeCursor(cursorStr, prefix string) (string, error) {
	if cursorStr == "" {
		return "", nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursorStr)
	if err != nil {
		return "", err
	}

	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 || parts[0] != prefix || parts[1] == "" {
		return "", fmt.Errorf("invalid cursor format")
	}
	return parts[1], nil
}
