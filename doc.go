// Package imgmatch selects the image pairs worth feature matching in a
// structure-from-motion pipeline.
//
// Matching every image against every other one is quadratic. For large
// collections imgmatch quantizes the local descriptors of each image with
// a vocabulary tree, stores the resulting bag-of-words histograms in a
// TF-IDF weighted inverted index and keeps, for every image, only the
// images most similar to it.
//
// # Quick Start
//
//	cfg := imgmatch.DefaultConfig()
//	cfg.Input = "sfm.json"
//	cfg.FeaturesFolder = "features/"
//	cfg.Tree = "vlfeat_K80L3.tree"
//	cfg.Output = "imageMatches.txt"
//
//	res, err := imgmatch.Run(ctx, cfg, imgmatch.WithLogLevel(slog.LevelInfo))
//	if err != nil {
//	    return err
//	}
//	fmt.Println(res.Mode, res.Pairs.NumPairs())
//
// # Selection Policy
//
// Brute force is used when no tree is configured or when the collections
// hold fewer than Config.MinImages images; otherwise the database is
// populated and queried:
//
//   - mode "a_ab": collection A populates the database (together with B, if
//     given) and every image of A is queried with its stored histogram
//   - mode "a_b": only B populates the database and the images of A are
//     quantized and queried against it
//
// The ranked results are reduced to an ordered pair list in which every
// unordered pair appears once, as (smaller id, larger id).
//
// # Output
//
// One line per image with at least one pair:
//
//	<id> <match> <match> ...
//
// Keys and matches are ascending. The file is replaced atomically and only
// after selection succeeded. With s3 or minio storage every output, trained
// vocabularies included, is put into the bucket instead of the local disk.
//
// # Errors
//
// Failures are reported as *LoadError, *EmptyCorpusError, *ConfigError or
// *IOError, which match ErrLoad, ErrEmptyCorpus, ErrConfig and ErrIO with
// errors.Is.
package imgmatch
