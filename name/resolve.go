package name

import "strconv"

const (
	// DataComponent separates the group prefix from published objects.
	DataComponent Component = "d"
	// SyncComponent separates the group prefix from sync traffic.
	SyncComponent Component = "s"
	// EpochPrefix precedes the decimal sequence number in the last component.
	EpochPrefix = "epoch-"
)

// DataName maps a publication to the name it is fetched and stored under:
//
//	groupPrefix / "d" / [nodeID] / "epoch-<seq>"
//
// nodeID is present only when cacheOthers is false. In cache-others mode every
// publisher shares the groupPrefix/d namespace so any member can serve any
// object. The flag is a deployment-wide setting: flipping it renames every
// object and breaks continuity with data fetched or cached earlier.
func DataName(groupPrefix Name, cacheOthers bool, nodeID Name, seq uint64) Name {
	return DataPrefix(groupPrefix, cacheOthers, nodeID).Append(EpochComponent(seq))
}

// DataPrefix is the prefix under which a node publishes its objects.
func DataPrefix(groupPrefix Name, cacheOthers bool, nodeID Name) Name {
	n := make(Name, 0, len(groupPrefix)+1+len(nodeID)+1)
	n = append(n, groupPrefix...)
	n = append(n, DataComponent)
	if !cacheOthers {
		n = append(n, nodeID...)
	}
	return n
}

// SyncPrefix is the prefix owned by the state-vector sync component.
func SyncPrefix(groupPrefix Name) Name {
	return groupPrefix.Append(SyncComponent)
}

// EpochComponent formats seq without sign or leading zeros.
func EpochComponent(seq uint64) Component {
	return Component(EpochPrefix + strconv.FormatUint(seq, 10))
}
