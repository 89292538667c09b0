package clustering

// Group runs DBSCAN-equivalent density clustering over a precomputed
// distance matrix: core points have at least minSamples points (including
// themselves) within eps; clusters expand by transitive reachability
// through core points; unreached points are noise.
//
// It returns, for each index 0..n-1, the zero-based cluster label it was
// assigned, or -1 for noise.
func Group(d [][]float64, eps float64, minSamples int) []int {
	n := len(d)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -2 // unvisited
	}

	neighbors := func(i int) []int {
		var out []int
		for j := 0; j < n; j++ {
			if d[i][j] <= eps {
				out = append(out, j)
			}
		}
		return out
	}

	nextLabel := 0
	for i := 0; i < n; i++ {
		if labels[i] != -2 {
			continue
		}
		nb := neighbors(i)
		if len(nb) < minSamples {
			labels[i] = -1 // tentatively noise; may be claimed by a core point later
			continue
		}

		label := nextLabel
		nextLabel++
		labels[i] = label

		queue := append([]int(nil), nb...)
		for qi := 0; qi < len(queue); qi++ {
			j := queue[qi]
			if labels[j] == -1 {
				labels[j] = label
			}
			if labels[j] != -2 {
				continue
			}
			labels[j] = label
			jn := neighbors(j)
			if len(jn) >= minSamples {
				queue = append(queue, jn...)
			}
		}
	}

	return labels
}

// Partition converts DBSCAN labels into clusters of size >= 2 keyed by
// label, plus a list of unclustered singleton indices (covering both noise
// points and any DBSCAN cluster that came out with exactly one member).
func Partition(labels []int) (clusters map[int][]int, singletons []int) {
	grouped := make(map[int][]int)
	for i, label := range labels {
		if label < 0 {
			continue
		}
		grouped[label] = append(grouped[label], i)
	}

	clusters = make(map[int][]int)
	for label, members := range grouped {
		if len(members) >= 2 {
			clusters[label] = members
		} else {
			singletons = append(singletons, members[0])
		}
	}
	for i, label := range labels {
		if label < 0 {
			singletons = append(singletons, i)
		}
	}
	return clusters, singletons
}
