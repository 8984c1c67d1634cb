// Package sift is an in-process Go client that compiles criteria trees into
// Elasticsearch queries and materializes scrolled results into Go values.
//
//	client, _ := sift.New(ctx, sift.WithElasticsearch("http://localhost:9200"))
//	defer client.Close()
//
//	near, _ := sift.SortByDistance("location", 52.52, 13.40, sift.Kilometers)
//
//	res, _ := sift.Find[Car](ctx, client, "cars", sift.Query{
//	    Criteria: []sift.Criteria{
//	        sift.Term("color", "red"),
//	        sift.Range("price", 10000, 20000),
//	    },
//	    Sort: []sift.SortKey{near},
//	}, 0, 20)
//
// Results sorted by distance carry the rounded distance under the
// "geoDistance" source key.
package sift
