package mocks

//go:generate mockery --name BucketStore --srcpkg github.com/aevon-lab/aevon-rollup/internal/core/storage --output ./storage --outpkg storagemocks --with-expecter
