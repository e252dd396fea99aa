// pqai-db serves patent documents, drawings and thumbnails over HTTP from
// filesystem, S3, MongoDB or PostgreSQL storage.
package main

func main() {
	Execute()
}
