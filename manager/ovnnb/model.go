package ovnnb

import (
	"github.com/ovn-org/libovsdb/model"
)

// DatabaseName is the name of the OVN northbound database.
const DatabaseName = "OVN_Northbound"

// LogicalSwitchPort is the subset of the Logical_Switch_Port table used to
// attach mirrors. The port name is the network port id.
type LogicalSwitchPort struct {
	UUID        string            `ovsdb:"_uuid"`
	Name        string            `ovsdb:"name"`
	MirrorRules []string          `ovsdb:"mirror_rules"`
	ExternalIDs map[string]string `ovsdb:"external_ids"`
}

// Mirror is a row of the Mirror table.
type Mirror struct {
	UUID        string            `ovsdb:"_uuid"`
	Name        string            `ovsdb:"name"`
	Filter      string            `ovsdb:"filter"`
	Sink        string            `ovsdb:"sink"`
	Type        string            `ovsdb:"type"`
	Index       int               `ovsdb:"index"`
	ExternalIDs map[string]string `ovsdb:"external_ids"`
}

// FullDatabaseModel returns the client model of the tables used here.
func FullDatabaseModel() (model.ClientDBModel, error) {
	return model.NewClientDBModel(DatabaseName, map[string]model.Model{
		"Logical_Switch_Port": &LogicalSwitchPort{},
		"Mirror":              &Mirror{},
	})
}
