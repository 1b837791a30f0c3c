package osm

import "github.com/darianmavgo/geoio/converters/common"

// SRID of node geometries (WGS 84).
const SRID = 4326

const (
	tableNode = iota
	tableNodeTag
	tableWay
	tableWayTag
	tableWayNode
	tableRelation
	tableRelationTag
	tableNodeMember
	tableWayMember
	tableRelationMember
	numTables
)

func text(name string) common.Field    { return common.Field{Name: name, Type: common.TypeText} }
func bigint(name string) common.Field  { return common.Field{Name: name, Type: common.TypeBigInt} }
func integer(name string) common.Field { return common.Field{Name: name, Type: common.TypeInteger} }

// metaFields are the common attributes of nodes, ways and relations.
func metaFields() common.Schema {
	return common.Schema{
		text("user_name"),
		bigint("uid"),
		{Name: "visible", Type: common.TypeBoolean},
		integer("version"),
		integer("changeset"),
		text("last_update"),
	}
}

func tagSchema(owner string) common.Schema {
	return common.Schema{bigint(owner), text("tag_key"), text("tag_value")}
}

func memberSchema(ref, order string) common.Schema {
	return common.Schema{bigint("id_relation"), bigint(ref), text("role"), integer(order)}
}

var tableDefs = []common.TableDef{
	tableNode: {Suffix: "_node", Schema: append(append(common.Schema{
		bigint("id_node"),
		{Name: "the_geom", Type: common.TypeGeometry, GeometryKind: "POINT", SRID: SRID},
		{Name: "ele", Type: common.TypeDouble},
	}, metaFields()...), text("name"))},
	tableNodeTag:        {Suffix: "_node_tag", Schema: tagSchema("id_node")},
	tableWay:            {Suffix: "_way", Schema: append(append(common.Schema{bigint("id_way")}, metaFields()...), text("name"))},
	tableWayTag:         {Suffix: "_way_tag", Schema: tagSchema("id_way")},
	tableWayNode:        {Suffix: "_way_node", Schema: common.Schema{bigint("id_way"), bigint("id_node"), integer("node_order")}},
	tableRelation:       {Suffix: "_relation", Schema: append(common.Schema{bigint("id_relation")}, metaFields()...)},
	tableRelationTag:    {Suffix: "_relation_tag", Schema: tagSchema("id_relation")},
	tableNodeMember:     {Suffix: "_node_member", Schema: memberSchema("id_node", "node_order")},
	tableWayMember:      {Suffix: "_way_member", Schema: memberSchema("id_way", "way_order")},
	tableRelationMember: {Suffix: "_relation_member", Schema: memberSchema("id_sub_relation", "relation_order")},
}
