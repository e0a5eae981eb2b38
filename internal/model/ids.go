package model

import (
	"fmt"

	"github.com/google/uuid"
)

// successorSpace namespaces the name-based ids of matches derived from
// another document.
var successorSpace = uuid.MustParse("6f1c2a9e-3d4b-5e8f-9a0b-1c2d3e4f5a6b")

// SeriesGameID is the id of the game at index in a series. Every client
// derives the same id, so racing creators converge on one document.
func SeriesGameID(seriesID string, index int) string {
	return uuid.NewSHA1(successorSpace, []byte(fmt.Sprintf("series/%s/game/%d", seriesID, index))).String()
}

// RematchID is the id of the rematch that follows matchID.
func RematchID(matchID string) string {
	return uuid.NewSHA1(successorSpace, []byte("rematch/"+matchID)).String()
}
