package semantic

import pb "github.com/qdrant/go-client/qdrant"

// buildFilter ANDs the provided dimensions; values within one dimension are
// ORed. It returns nil when no dimension is set.
func buildFilter(p SearchParams) *pb.Filter {
	var must []*pb.Condition
	if c := anyOf(FieldSpaceKey, p.SpaceKeys); c != nil {
		must = append(must, c)
	}
	if c := anyOf(FieldLabels, p.Labels); c != nil {
		must = append(must, c)
	}
	types := make([]string, len(p.ChunkTypes))
	for i, t := range p.ChunkTypes {
		types[i] = string(t)
	}
	if c := anyOf(FieldChunkType, types); c != nil {
		must = append(must, c)
	}
	if len(must) == 0 {
		return nil
	}
	return &pb.Filter{Must: must}
}

// anyOf matches points whose field equals any of values. Single values use a
// plain keyword match.
func anyOf(key string, values []string) *pb.Condition {
	switch len(values) {
	case 0:
		return nil
	case 1:
		return fieldMatch(key, values[0])
	}
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keywords{Keywords: &pb.RepeatedStrings{Strings: values}},
				},
			},
		},
	}
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key: key,
				Match: &pb.Match{
					MatchValue: &pb.Match_Keyword{Keyword: value},
				},
			},
		},
	}
}

func pageFilter(pageID string) *pb.Filter {
	return &pb.Filter{Must: []*pb.Condition{fieldMatch(FieldPageID, pageID)}}
}

func spaceFilter(spaceKey string) *pb.Filter {
	return &pb.Filter{Must: []*pb.Condition{fieldMatch(FieldSpaceKey, spaceKey)}}
}
