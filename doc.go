// Package knnstore provides a datastore for retrieval-augmented next-token
// prediction in the style of kNN-LM.
//
// A Datastore stores model hidden states (keys), each paired with the token
// that followed it (label) and the token that produced it (input). It trains
// an inverted-file index over the keys and, for a query hidden state, turns
// the labels of the nearest stored keys into a score over the vocabulary:
//
//	score[label_i] += softmax(-distance_i / T)
//
// # Lifecycle
//
// A Datastore moves from untrained to trained (Train) to populated (Add):
//
//	ctx := context.Background()
//	ds := knnstore.New(knnstore.WithNCentroids(1024), knnstore.WithNProbe(16))
//	if err := ds.Train(ctx, sample); err != nil {
//	    log.Fatal(err)
//	}
//	ids, err := ds.Add(ctx, keys, labels, inputs)
//
// Search needs the vocabulary size:
//
//	_ = ds.SetVocabSize(32000)
//	res, err := ds.Search(ctx, queries, 8, 10.0)
//	fmt.Println(res.Scores[0][42])
//
// # Persistence
//
// Save and Load work on any blobstore.BlobStore; SaveDir and LoadDir use a
// local directory:
//
//	err := ds.SaveDir(ctx, "./datastore")
//	ds, err := knnstore.LoadDir(ctx, "./datastore")
//
//	s3Store, _ := s3.New(ctx, "my-bucket", s3.WithPrefix("datastores/wiki/"))
//	err = ds.Save(ctx, s3Store)
//
// A saved datastore holds index.trained, token_ids.bin, input_ids.bin, the
// optional whitening.bin and a manifest.json with sizes and checksums.
//
// # Whitening
//
// WithWhitening fits a whitening transform (Su et al., 2021) on the training
// keys and applies it to every key and query, optionally reducing the
// dimension.
package knnstore
