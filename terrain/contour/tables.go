package contour

// EdgeCorners holds the two corners, indexed like cube.ChildOffsets, joined by each of the 12 edges of a cell. Edges
// 0-3 run along x, 4-7 along y and 8-11 along z.
var EdgeCorners = [12][2]int{
	{0, 4}, {1, 5}, {2, 6}, {3, 7},
	{0, 2}, {1, 3}, {4, 6}, {5, 7},
	{0, 1}, {2, 3}, {4, 5}, {6, 7},
}

// cellFaces lists the pairs of children of a cell sharing a face, followed by the axis of the face.
var cellFaces = [12][3]int{
	{0, 4, 0}, {1, 5, 0}, {2, 6, 0}, {3, 7, 0},
	{0, 2, 1}, {4, 6, 1}, {1, 3, 1}, {5, 7, 1},
	{0, 1, 2}, {2, 3, 2}, {4, 5, 2}, {6, 7, 2},
}

// cellEdges lists the quads of children of a cell sharing an edge, followed by the axis of the edge.
var cellEdges = [6][5]int{
	{0, 1, 2, 3, 0}, {4, 5, 6, 7, 0},
	{0, 4, 1, 5, 1}, {2, 6, 3, 7, 1},
	{0, 2, 4, 6, 2}, {1, 3, 5, 7, 2},
}

// faceFaces lists, per face axis, the 4 pairs of children on either side of a face that share a smaller face.
var faceFaces = [3][4][3]int{
	{{4, 0, 0}, {5, 1, 0}, {6, 2, 0}, {7, 3, 0}},
	{{2, 0, 1}, {6, 4, 1}, {3, 1, 1}, {7, 5, 1}},
	{{1, 0, 2}, {3, 2, 2}, {5, 4, 2}, {7, 6, 2}},
}

// faceEdges lists, per face axis, the 4 edges lying in a face. The first entry selects the order the two face
// nodes are read in, the following 4 are child indices and the last is the edge axis.
var faceEdges = [3][4][6]int{
	{{1, 4, 0, 5, 1, 1}, {1, 6, 2, 7, 3, 1}, {0, 4, 6, 0, 2, 2}, {0, 5, 7, 1, 3, 2}},
	{{0, 2, 3, 0, 1, 0}, {0, 6, 7, 4, 5, 0}, {1, 2, 0, 6, 4, 2}, {1, 3, 1, 7, 5, 2}},
	{{1, 1, 0, 3, 2, 0}, {1, 5, 4, 7, 6, 0}, {0, 1, 5, 0, 4, 1}, {0, 3, 7, 2, 6, 1}},
}

var faceEdgeOrders = [2][4]int{
	{0, 0, 1, 1},
	{0, 1, 0, 1},
}

// edgeEdges lists, per edge axis, the 2 halves of an edge shared by 4 nodes as child indices of those nodes.
var edgeEdges = [3][2][5]int{
	{{3, 2, 1, 0, 0}, {7, 6, 5, 4, 0}},
	{{5, 1, 4, 0, 1}, {7, 3, 6, 2, 1}},
	{{6, 4, 2, 0, 2}, {7, 5, 3, 1, 2}},
}

// edgeOfNode holds, per edge axis, which of the 12 cell edges of each of the 4 nodes around an edge lies on it.
var edgeOfNode = [3][4]int{
	{3, 2, 1, 0},
	{7, 5, 6, 4},
	{11, 10, 9, 8},
}
