package memory

import "github.com/hashicorp/go-memdb"

var (
	tblOperations = "operations"
	tblConflicts  = "conflicts"
	tblDevices    = "devices"
	tblVersions   = "versions"
)

var schema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		tblOperations: {
			Name: tblOperations,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
				"user": {
					Name:    "user",
					Indexer: &memdb.StringFieldIndex{Field: "UserID"},
				},
				"user_device": {
					Name: "user_device",
					Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "UserID"},
							&memdb.StringFieldIndex{Field: "DeviceID"},
						},
					},
				},
				"user_key": {
					Name: "user_key",
					Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "UserID"},
							&memdb.StringFieldIndex{Field: "EntityType"},
							&memdb.StringFieldIndex{Field: "EntityID"},
						},
					},
				},
			},
		},
		tblConflicts: {
			Name: tblConflicts,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
				"user": {
					Name:    "user",
					Indexer: &memdb.StringFieldIndex{Field: "UserID"},
				},
			},
		},
		tblDevices: {
			Name: tblDevices,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:   "id",
					Unique: true,
					Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "UserID"},
							&memdb.StringFieldIndex{Field: "DeviceID"},
						},
					},
				},
				"user": {
					Name:    "user",
					Indexer: &memdb.StringFieldIndex{Field: "UserID"},
				},
			},
		},
		tblVersions: {
			Name: tblVersions,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "Key"},
				},
			},
		},
	},
}
