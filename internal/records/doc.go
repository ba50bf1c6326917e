// Package records is the domain layer of premia: it stores prediction history
// and profiles per user on top of a storage.Store.
//
// Key layout:
//
//	predictions:{userId}:{predictionId}  one entry per saved prediction
//	profile:{userId}                     at most one profile per user
//
// The user id is an opaque, client generated routing key. It is not
// authenticated; anyone who knows an id can read and write that user's data.
// Ids containing ":" are refused so one user's prefix can never cover another's.
//
// Requests are validated through PredictionRecord and ProfileRecord, but the
// stored value is the client's own JSON document: timestamps keep their
// original text and unknown fields survive a round trip.
//
// Writes are last-write-wins per key. ClearPredictions is a scan followed by a
// batch delete, so it removes exactly the predictions its scan saw.
package records
