package badger

// Key prefixes for different data types
const (
	descriptionPrefix = "desc:"
	imagePrefix       = "img:"
	mappingPrefix     = "map:"
	embeddingPrefix   = "emb:"
	catalogSeq        = "catseq"
)

// makeDescriptionKey generates a key for a description by ID.
func makeDescriptionKey(id string) []byte {
	return []byte(descriptionPrefix + id)
}

// makeImageKey generates a key for an image by name.
func makeImageKey(name string) []byte {
	return []byte(imagePrefix + name)
}

// makeMappingKey generates a key for the mapping of an image.
func makeMappingKey(imageName string) []byte {
	return []byte(mappingPrefix + imageName)
}

// makeEmbeddingKey generates a key for a description embedding.
func makeEmbeddingKey(descriptionID string) []byte {
	return []byte(embeddingPrefix + descriptionID)
}
