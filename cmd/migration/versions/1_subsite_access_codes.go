package versions

import (
	"gorm.io/gorm"
)

// Adds the per-subsite registration access code introduced after the first
// release. Existing subsites keep an empty code, which disables the check.
func Migration_1_subsite_access_codes(txn *gorm.DB) error {
	type Subsite struct {
		AccessCode string `gorm:"size:128"`
	}

	if txn.Migrator().HasColumn(&Subsite{}, "access_code") {
		return nil
	}

	return txn.Migrator().AddColumn(&Subsite{}, "AccessCode")
}
