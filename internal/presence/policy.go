package presence

// Decide reports whether a clip with the given stats belongs in the dataset:
// faces must be visible in at least MinFaceProb of the frames and the average
// face count must fall inside the configured band.
func (c Config) Decide(s ClipStats) bool {
	if s.FaceProb < c.MinFaceProb {
		return false
	}
	lo, hi := c.Bounds()
	return s.AvgNumFaces >= lo && s.AvgNumFaces <= hi
}
