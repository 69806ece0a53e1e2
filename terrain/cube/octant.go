package cube

// ChildOffsets holds the minimum offsets of the 8 children of an octree node, in units of the child size. The
// index of an offset is the child index: x contributes 4, y contributes 2 and z contributes 1.
var ChildOffsets = [8]Pos{
	{0, 0, 0},
	{0, 0, 1},
	{0, 1, 0},
	{0, 1, 1},
	{1, 0, 0},
	{1, 0, 1},
	{1, 1, 0},
	{1, 1, 1},
}

// ChildIndex returns the index of the child of a node with parentMin whose minimum corner is childMin, for
// children of size childSize.
func ChildIndex(parentMin, childMin Pos, childSize int) int {
	d := childMin.Sub(parentMin)
	x, y, z := d[0]/childSize, d[1]/childSize, d[2]/childSize
	return x<<2 | y<<1 | z
}

// ChildMin returns the minimum corner of child i of a node with parentMin and parentSize.
func ChildMin(parentMin Pos, parentSize, i int) Pos {
	return parentMin.Add(ChildOffsets[i].Mul(parentSize / 2))
}
