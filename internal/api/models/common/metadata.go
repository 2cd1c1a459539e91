package common

import "github.com/lloydmeta/infodocs/internal/domain/metadata"

type Version struct {
	SeqNum      uint64 `json:"seq_num"`
	PrimaryTerm uint64 `json:"primary_term"`
}

func FromDomainVersion(v metadata.Version) Version {
	return Version{
		SeqNum:      uint64(v.SeqNum),
		PrimaryTerm: uint64(v.PrimaryTerm),
	}
}
