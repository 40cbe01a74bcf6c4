package config

import (
	"errors"
	"fmt"

	commonconfig "github.com/smartcontractkit/chainlink-common/pkg/config"
	"golang.org/x/exp/slices"
)

type TOMLConfigs []*TOMLConfig

func (cs TOMLConfigs) ValidateConfig() error {
	return cs.validateKeys()
}

func (cs TOMLConfigs) validateKeys() error {
	var err error
	// Unique network IDs
	networkIDs := commonconfig.UniqueStrings{}
	for i, c := range cs {
		if networkIDs.IsDupe(c.NetworkID) {
			err = errors.Join(err, commonconfig.NewErrDuplicate(fmt.Sprintf("%d.NetworkID", i), *c.NetworkID))
		}
	}
	return err
}

func (cs *TOMLConfigs) SetFrom(fs *TOMLConfigs) error {
	if err := fs.validateKeys(); err != nil {
		return err
	}
	for _, f := range *fs {
		if f.NetworkID == nil {
			*cs = append(*cs, f)
		} else if i := slices.IndexFunc(*cs, func(c *TOMLConfig) bool {
			return c.NetworkID != nil && *c.NetworkID == *f.NetworkID
		}); i == -1 {
			*cs = append(*cs, f)
		} else {
			(*cs)[i].SetFrom(f)
		}
	}
	return nil
}
