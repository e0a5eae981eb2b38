package recordstore

import (
	"errors"
	"testing"

	"cloud.google.com/go/firestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		want      error
		storeErr  bool
		wantInMsg string
	}{
		{name: "not found", err: status.Error(codes.NotFound, "no doc"), want: ErrNotFound},
		{name: "already exists", err: status.Error(codes.AlreadyExists, "dup"), want: ErrAlreadyExists},
		{name: "aborted transaction", err: status.Error(codes.Aborted, "contention"), want: ErrConflict, storeErr: true},
		{name: "unavailable", err: status.Error(codes.Unavailable, "down"), storeErr: true, wantInMsg: "down"},
		{name: "plain error", err: errors.New("socket closed"), storeErr: true, wantInMsg: "socket closed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("update", "matches", "m1", tt.err)
			require.Error(t, got)
			if tt.want != nil {
				assert.ErrorIs(t, got, tt.want)
			}
			assert.Equal(t, tt.storeErr, IsStoreError(got))
			assert.Contains(t, got.Error(), "matches/m1")
			if tt.wantInMsg != "" {
				assert.Contains(t, got.Error(), tt.wantInMsg)
			}
		})
	}
}

func TestFirestoreUpdates_TranslatesPathsAndMarkers(t *testing.T) {
	updates := firestoreUpdates(Fields{
		"nextGameReady.alice": true,
		"rematchRequestedBy":  Delete,
		"updatedAt":           ServerTimestamp,
		"scores.X":            3,
		"board":               []string{"X", "", "O"},
	})

	byPath := make(map[string]any, len(updates))
	for _, u := range updates {
		assert.Empty(t, u.FieldPath, "dotted keys travel as Path so nested maps merge")
		byPath[u.Path] = u.Value
	}
	require.Len(t, byPath, 5)
	assert.Equal(t, true, byPath["nextGameReady.alice"])
	assert.Equal(t, firestore.Delete, byPath["rematchRequestedBy"])
	assert.Equal(t, firestore.ServerTimestamp, byPath["updatedAt"])
	assert.Equal(t, int64(3), byPath["scores.X"])
	assert.Equal(t, []any{"X", "", "O"}, byPath["board"])
}

func TestFirestoreData_NestsDottedKeys(t *testing.T) {
	data := firestoreData(Fields{
		"nextGameReady.alice": false,
		"nextGameReady.bob":   true,
		"status":              "waiting",
		"gone":                Delete,
		"createdAt":           ServerTimestamp,
	})

	assert.Equal(t, map[string]any{"alice": false, "bob": true}, data["nextGameReady"])
	assert.Equal(t, "waiting", data["status"])
	assert.NotContains(t, data, "gone")
	assert.Equal(t, firestore.ServerTimestamp, data["createdAt"])
}
