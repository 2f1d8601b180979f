package services

import (
	"math"

	"github.com/benchlane/benchlane-engine/pkg/models"
)

// RankerVersion tags explanations and snapshots with the tree-table revision.
const RankerVersion = "ltr-gbdt-v1"

// ltrNode is one node of a fixed gradient-boosted tree. Leaf nodes carry a
// value; internal nodes split on a feature threshold, going left when
// feature < threshold.
type ltrNode struct {
	Feature   string
	Threshold float64
	Left      int
	Right     int
	Leaf      bool
	Value     float64
}

type ltrTree []ltrNode

const (
	ltrBaseScore    = 0.0
	ltrLearningRate = 0.3
)

// ltrTrees is the embedded tree table. Fixed per ranker version; trained
// offline from historical feedback and checked in as data.
var ltrTrees = []ltrTree{
	{
		{Feature: "skillOverlap", Threshold: 0.45, Left: 1, Right: 2},
		{Feature: "linearScore", Threshold: 0.5, Left: 3, Right: 4},
		{Feature: "availability", Threshold: 0.5, Left: 5, Right: 6},
		{Leaf: true, Value: -1.2},
		{Leaf: true, Value: -0.3},
		{Leaf: true, Value: 0.4},
		{Leaf: true, Value: 1.4},
	},
	{
		{Feature: "retrievalScore", Threshold: 0.35, Left: 1, Right: 2},
		{Feature: "recencyScore", Threshold: 0.4, Left: 3, Right: 4},
		{Feature: "rateAlignment", Threshold: 0.6, Left: 5, Right: 6},
		{Leaf: true, Value: -0.9},
		{Leaf: true, Value: -0.2},
		{Leaf: true, Value: 0.3},
		{Leaf: true, Value: 0.9},
	},
	{
		{Feature: "locationMatch", Threshold: 0.55, Left: 1, Right: 2},
		{Feature: "skillOverlap", Threshold: 0.7, Left: 3, Right: 4},
		{Feature: "vectorScore", Threshold: 0.5, Left: 5, Right: 6},
		{Leaf: true, Value: -0.5},
		{Leaf: true, Value: 0.5},
		{Leaf: true, Value: 0.2},
		{Leaf: true, Value: 0.8},
	},
	{
		{Feature: "linearScore", Threshold: 0.65, Left: 1, Right: 2},
		{Feature: "availability", Threshold: 0.8, Left: 3, Right: 4},
		{Feature: "lexicalScore", Threshold: 0.3, Left: 5, Right: 6},
		{Leaf: true, Value: -0.6},
		{Leaf: true, Value: 0.1},
		{Leaf: true, Value: 0.6},
		{Leaf: true, Value: 1.0},
	},
}

func (t ltrTree) score(features map[string]float64) float64 {
	i := 0
	for !t[i].Leaf {
		if features[t[i].Feature] < t[i].Threshold {
			i = t[i].Left
		} else {
			i = t[i].Right
		}
	}
	return t[i].Value
}

// LTRScore runs the embedded tree ensemble over the feature vector extended
// with the linear score and the combined retrieval score, then squashes the
// boosted margin through a sigmoid into [0,1].
func LTRScore(features models.FeatureVector, linearScore float64) float64 {
	input := featureMap(features)
	input["linearScore"] = linearScore
	input["retrievalScore"] = 0.6*features.VectorScore + 0.4*features.LexicalScore

	margin := ltrBaseScore
	for _, tree := range ltrTrees {
		margin += ltrLearningRate * tree.score(input)
	}
	return 1 / (1 + math.Exp(-margin))
}
