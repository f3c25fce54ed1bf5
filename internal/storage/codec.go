package storage

import (
	"encoding/json"
	"errors"

	"coherence/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// CurrentVersion is stamped on every record written by this build.
func CurrentVersion() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeRun(r model.RunRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func EncodeLeaderboard(b model.Leaderboard) ([]byte, error) {
	return json.Marshal(b)
}

func DecodeLeaderboard(data []byte) (model.Leaderboard, error) {
	var board model.Leaderboard
	if err := json.Unmarshal(data, &board); err != nil {
		return model.Leaderboard{}, err
	}
	if err := checkVersion(board.VersionedRecord); err != nil {
		return model.Leaderboard{}, err
	}
	return board, nil
}

func EncodeMismatch(m model.MismatchMatrix) ([]byte, error) {
	return json.Marshal(m)
}

func DecodeMismatch(data []byte) (model.MismatchMatrix, error) {
	var matrix model.MismatchMatrix
	if err := json.Unmarshal(data, &matrix); err != nil {
		return model.MismatchMatrix{}, err
	}
	if err := checkVersion(matrix.VersionedRecord); err != nil {
		return model.MismatchMatrix{}, err
	}
	return matrix, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
